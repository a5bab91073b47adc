/*
Package evaluator runs evaluation requests against cached sandbox engines.

An engine is built once per distinct environment (the composed dependency
bundles plus any extra code) and kept in a bounded LRU. Each cached engine
sits behind a slot pool, which caps concurrency, and a circuit breaker that
counts only resource failures. A script that keeps timing out or blowing the
heap ceiling trips its own breaker without affecting engines built for other
environments.

Usage:

	svc := evaluator.New(evaluator.Config{
		Backend:    sandbox.BackendNative,
		PoolSize:   4,
		MaxEngines: 16,
	}, bundle.NewRegistry(logger), metrics, logger)
	defer svc.Close()

	res, err := svc.Evaluate(ctx, &evaluator.Request{
		Code:    "data.total * 2",
		Globals: map[string]any{"data": map[string]any{"total": 21}},
		Deps:    []string{bundle.Polyfill},
	})
*/
package evaluator
