// Package server assembles the evaluation service, middleware and routes
// into one HTTP server with graceful shutdown.
package server
