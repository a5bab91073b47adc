/*
Package resilience provides circuit breaker implementation for graceful degradation.

# Overview

This package implements the circuit breaker pattern to stop feeding
work to an engine whose scripts keep exhausting their time or memory budget.

# Features

- Three-state circuit breaker (Closed, Open, Half-Open)
- Consecutive-failure threshold and open cooldown
- Caller-defined failure classification
- State change callbacks for monitoring

# Usage

Each cached sandbox engine gets its own breaker. Script errors are the
caller's problem and count as successes; only resource failures trip it.

	breaker := resilience.New(fingerprint, resilience.Settings{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		IsFailure: sandbox.IsResourceError,
	})

	err := breaker.Do(func() error {
		_, err := pool.Evaluate(ctx, code, globals, opts)
		return err
	})

# States

- Closed: Normal operation, requests pass through
- Open: Service unavailable, requests fail immediately
- Half-Open: Testing if service recovered, limited requests allowed

# Pattern

The breaker moves on consecutive failures, never on rates:

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
