/*
Package tracing records lightweight spans for HTTP requests and evaluations.

Spans carry a trace ID shared by everything one request triggers and a
parent link, so an evaluation span sits under the request span that caused
it. Finished spans go through a buffered channel to a collector goroutine
that writes them to zap; nothing is exported to an external system.

# Usage

	tracer := tracing.New("scriptvm", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "evaluate")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.SetTag("backend", "native")

# Propagation

X-Trace-ID and X-Span-ID on an incoming request continue an existing trace;
both are set on every response.
*/
package tracing
