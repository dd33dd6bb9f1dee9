/*
Package monitoring provides Prometheus metrics for a profiling session.

# Overview

Every session owns a Metrics value backed by a private registry, so tests
and concurrent sessions never collide on global state.

# Metrics

- Modules loaded and failed (by lifecycle stage)
- Profiling readiness notifications and barrier releases
- Region messages by state and result, malformed workflow messages
- Active workflows, workflow duration and exit codes
- Accepted transport connections

# Usage

	metrics := monitoring.NewMetrics()

	timer := monitoring.NewTimer(metrics, "entity1")
	// ... wait for the workflow ...
	timer.Stop(exitCode)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
