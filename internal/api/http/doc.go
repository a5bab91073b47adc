// Package http provides the HTTP handlers for the evaluation API.
//
// Routes:
//
//	GET  /              service banner
//	GET  /health        engine cache and pool occupancy
//	GET  /bundles       registered dependency bundles
//	GET  /metrics/json  request and evaluation counters as JSON
//	POST /evaluate      run code, return its plain-data result
//	POST /render        run code that builds HTML, return it sanitized
//	GET  /stream        WebSocket; evaluate/render frames with live console
//
// Evaluation failures map onto status codes: script exceptions are 422,
// timeouts 408, memory ceiling 507, a tripped engine or closed service 503,
// malformed requests and unknown bundles 400.
package http
