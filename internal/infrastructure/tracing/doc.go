/*
Package tracing records the lifecycle phases of a profiling session as
spans.

# Overview

Every span carries the session ID as its trace ID. Phases such as module
initialisation, an entity's workflow run and module processing become
spans; nested phases link to their parent through the context. Finished
spans are logged through zap and the most recent ones are retained for the
status server.

# Usage

	tracer := tracing.New(sessionID, logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "entity.run")
	span.SetTag("entity", name)
	// ... run the phase ...
	if err != nil {
		span.SetError(err)
	}
	tracer.Submit(span)

	router.Use(tracing.HTTPMiddleware(tracer))
*/
package tracing
