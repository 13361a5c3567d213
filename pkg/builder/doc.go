// Package builder resolves front-end bundle build plans from declarative
// build configurations, and runs them with esbuild.
//
// A configuration describes entry points, the output layout, transformation
// rules, ignore-module plugins, size budgets and the source map policy. The
// builder validates all of it at once and returns an immutable Plan, or a
// single *Error listing every problem found.
//
// # Basic Usage
//
// Load a configuration file, select an environment and assemble its plan:
//
//	import "github.com/am-lens/bundlectl/pkg/builder"
//
//	cfg, err := builder.Load([]string{"bundlectl.yaml"}, "production")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	p, err := cfg.Assemble(ctx, builder.New().WithSourceCheck(true))
//	if err != nil {
//	    for _, problem := range builder.Problems(err) {
//	        log.Println(problem)
//	    }
//	    os.Exit(1)
//	}
//
// The plan is deterministic: the same configuration always yields the same
// plan, and Plan.Digest identifies it.
//
// # Environments
//
// The build section of the configuration is shared by every environment.
// Overlays patch it per environment with JSON patch operations:
//
//	overlays:
//	  production:
//	    - {op: replace, path: /devtool, value: none}
//	    - {op: add, path: /entry/admin, value: ./src/admin.js}
//
// Entries keep the order they are declared in; entries added by an overlay
// come after the base ones.
//
// # Bundling
//
// Bundle runs a plan with esbuild. Rules select the transformer registered
// for their loader, and imports dropped by a plugin resolve to empty modules.
// Artifacts over budget are reported as warnings, never as errors. Log
// output of Assemble and Bundle is tagged with the environment:
//
//	result, err := cfg.Bundle(ctx, p)
//	for _, w := range result.Warnings {
//	    log.Println("WARNING:", w)
//	}
//
// # Thread Safety
//
// Plans are immutable and safe for concurrent use. A Builder must not be
// configured concurrently, but Assemble may be called from several goroutines.
package builder
