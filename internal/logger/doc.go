// Package logger wraps zap to give the updater:
//   - a global sugared logger writing human-readable lines to stdout,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and switching,
//   - shorthands such as Infof or WarnKV that read the logger from a context.
//
// Every component takes a context and logs through it, so a run can attach
// its name and run ID once and have them on every line.
package logger
