// Package server provides the optional status server of a profiling session.
//
// Routes:
//   - GET /health    liveness and the number of event subscribers
//   - GET /metrics   Prometheus metrics of the session
//   - GET /entities  state snapshot of every entity (system.Status)
//   - GET /trace     recently finished spans
//   - GET /events    websocket stream of system events
//
// The server is created before the system so it can receive the events
// emitted while modules initialise:
//
//	srv := server.New(server.Config{Address: addr, Metrics: metrics})
//	cfg.Events = srv.Publish
//	sys, err := system.New(cfg)
//	srv.Attach(sys)
//	if err := srv.Start(); err != nil { ... }
//	defer srv.Shutdown(ctx)
package server
