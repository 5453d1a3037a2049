// Package logging provides a minimal logging interface and adapters for the
// mess planner runtime.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, flows and agents use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - PlannerLogger, a slog backed logger with component/session context
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(agent, sessions, memories, func(o *runner.Options) { o.Logger = logger })
package logging
