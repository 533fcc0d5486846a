// Package logger wraps zap for the whole service:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level parsing and an optional append-only log file,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Monitors, the coordinator and the supervisor receive a context and extract
// the logger from it, so every line carries the component name.
package logger
