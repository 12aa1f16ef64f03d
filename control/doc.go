// Package control provides the runtime's structured logger, hot-reload
// hooks, metrics telemetry, and debug introspection layer.
//
// Provides concurrent-safe state handling primitives including:
//   - A shared zerolog logger used for the scheduler/timer/iomanager
//     error taxonomy
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts
//   - State export, debug hooks, and probe registration
//
// This package is cross-platform and build-tag-partitioned as needed.
package control
