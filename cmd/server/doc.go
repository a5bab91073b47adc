// Package main is the entry point for the scriptvm evaluation server.
//
// The server accepts code plus input values over HTTP, runs the code in a
// resource-bounded sandbox and returns a plain-data result.
//
// Configuration:
//   - Environment variables (12-factor, see internal/infrastructure/config)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -backend native -memory 128 -timeout 1000
//
//	# Development mode (colored logs, debug level)
//	./server -dev -bundles ./bundles
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
