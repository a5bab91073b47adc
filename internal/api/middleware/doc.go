// Package middleware provides the HTTP middleware in front of the
// evaluation API.
//
// Middleware stack includes:
//   - RequestID: Reuses or mints an X-Request-ID (ULID) per request
//   - AccessLog: One zap line per request, level by status class
//   - CORS: Cross-origin resource sharing with configurable origins
//   - RateLimit: Per-IP token bucket rate limiting with idle client cleanup
//   - Compress: gzip for large responses (wraps the router as http.Handler)
//
// Example Usage:
//
//	router.Use(middleware.RequestID())
//	router.Use(middleware.AccessLog(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
//	handler, err := middleware.Compress(router, 1024)
package middleware
