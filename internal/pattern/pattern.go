// Package pattern compiles the path predicates used by transform rules and
// ignore-module plugins.
//
// A pattern written between slashes, like `/\.js$/` or `/^\.\/locale$/i`, is a
// regular expression and matches anywhere in the subject (as JavaScript's
// RegExp.test does). Any other string is a glob compiled without separators,
// so `*.js` also matches `vendor/a.js`.
package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru"
)

type matcher interface {
	Match(string) bool
}

// Pattern is a compiled path predicate. The zero value matches nothing.
type Pattern struct {
	src string
	m   matcher
}

const cacheSize = 256

var cache = mustCache(cacheSize)

func mustCache(size int) *lru.Cache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return c
}

// Compile parses src into a Pattern. Compiled patterns are cached, the same
// sources are typically compiled once during configuration validation and
// again when the plan is assembled.
func Compile(src string) (Pattern, error) {
	if src == "" {
		return Pattern{}, errors.New("empty pattern")
	}
	if v, ok := cache.Get(src); ok {
		return v.(Pattern), nil
	}

	var (
		m   matcher
		err error
	)
	if expr, flags, ok := splitRegexp(src); ok {
		m, err = compileRegexp(expr, flags)
	} else {
		m, err = glob.Compile(src)
	}
	if err != nil {
		return Pattern{}, fmt.Errorf("failed to compile pattern %q: %w", src, err)
	}

	p := Pattern{src: src, m: m}
	cache.Add(src, p)
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) Pattern {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether s satisfies the pattern.
func (p Pattern) Match(s string) bool {
	if p.m == nil {
		return false
	}
	return p.m.Match(s)
}

// IsZero reports whether the pattern was never compiled.
func (p Pattern) IsZero() bool {
	return p.m == nil
}

func (p Pattern) String() string {
	return p.src
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.src)
}

func (p Pattern) MarshalYAML() (any, error) {
	return p.src, nil
}

func (p Pattern) Equal(other Pattern) bool {
	return p.src == other.src
}

func splitRegexp(src string) (expr, flags string, ok bool) {
	if len(src) < 2 || src[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(src, '/')
	if end == 0 {
		return "", "", false
	}
	flags = src[end+1:]
	if strings.Trim(flags, "gimsuy") != "" {
		// Not a flag suffix, so this is a glob that happens to start with a slash.
		return "", "", false
	}
	return src[1:end], flags, true
}

// regexpMatcher tests whether the expression matches anywhere in a string.
type regexpMatcher struct {
	re *regexp.Regexp
}

func (m regexpMatcher) Match(s string) bool {
	return m.re.MatchString(s)
}

// compileRegexp supports the i, m and s flags. g has no effect on a single
// test and is ignored; u and y change matching in ways RE2 cannot express.
func compileRegexp(expr, flags string) (matcher, error) {
	var goFlags string
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			goFlags += string(f)
		case 'g':
		default:
			return nil, fmt.Errorf("unsupported regular expression flag %q", f)
		}
	}
	if goFlags != "" {
		expr = "(?" + goFlags + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return regexpMatcher{re: re}, nil
}
