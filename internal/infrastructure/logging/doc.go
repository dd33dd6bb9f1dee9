// Package logging provides structured logging for the coordinator using uber/zap.
//
// Two modes are available:
//   - Production: JSON records, written to stderr and optionally to a
//     session log file under the run's log directory
//   - Development: coloured console output for human readability
//
// Stdout is left to the terminal sink (see package terminal), so the
// default output path is stderr.
//
// Every component receives a named child logger:
//
//	logger := logging.NewDefault()
//	entityLog := logger.Component("entity").With(zap.String("entity", name))
//	entityLog.Info("workflow released", zap.Int("pid", pid))
package logging
