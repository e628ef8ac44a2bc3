// Package sandbox provides the isolated code-execution engine.
//
// The sandbox package executes arbitrary untrusted source code inside
// disposable, resource-constrained, network-isolated containers. A single
// Execute call resolves the language profile, stages the source into an
// ephemeral workspace, acquires a single-use container with the workspace
// bound read-write, issues the run (or compile-then-run) command through the
// engine's exec mechanism, collects demultiplexed bounded output, and tears
// everything down on every exit path.
//
// Usage:
//
//	api, err := sandbox.NewEngineClient(logger, "")
//	executor := sandbox.NewExecutor(logger, cfg, api)
//	outcome, err := executor.Execute(ctx, sandbox.Request{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
