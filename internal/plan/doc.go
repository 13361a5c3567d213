// Package plan holds the building blocks of a build plan: entry resolution,
// transform rules, the ignore-module plugin chain, output naming and size
// budgets, and the immutable Plan that aggregates them.
//
// Nothing in this package touches the file system. Validation that needs
// I/O (source reachability, output writability) is done by the builder
// package before a Plan is created.
package plan
