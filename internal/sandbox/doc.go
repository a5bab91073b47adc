/*
Package sandbox evaluates untrusted JavaScript in disposable contexts.

# Overview

An Engine owns one long-lived isolate: the memory ceiling, the default
timeout and an optional environment script. Every Evaluate call opens a
brand-new global scope on that isolate, runs

 1. the environment script
 2. the per-call environment (EvaluateOptions.Env)
 3. host globals, copied in by value
 4. the env mutation snippet (EvaluateOptions.ModifyEnv)
 5. the user code

and copies the completion value of the user code back out. The scope is
released before the call returns, so nothing a script does survives into the
next evaluation.

# Backends

Two evaluators sit behind the same contract:

  - native: goja. The environment is compiled once to a goja.Program.
    Interrupts are preemptive and the call stack is bounded.
  - interpreted: otto, ES5 only. The environment is parsed once for
    validation and re-run per context. Interrupts are delivered between
    statements.

# Values

Values crossing the boundary follow a small grammar: nil (null), Undefined,
bool, float64, string, []any and map[string]any. Anything else (functions,
symbols, bigints, channels, structs) is dropped at the exact position where
it occurs. Array holes stay holes. Dates leave a context as ISO-8601 strings.

# Limits

A watchdog per evaluation trips the first of: the deadline, ctx
cancellation, or heap growth past MemoryLimitMB. Heap growth is sampled from
runtime/metrics and is process-wide, so concurrent evaluations share the
figure. A tripped evaluation fails with ErrTimeout or ErrMemoryLimit.

# Usage Example

	engine, err := sandbox.New(sandbox.Options{
		Env:     "var greet = function (n) { return 'hi ' + n; };",
		Timeout: 500 * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer engine.Dispose()

	v, err := engine.Evaluate(ctx, "greet(name)", map[string]any{"name": "ada"}, sandbox.EvaluateOptions{})
*/
package sandbox
