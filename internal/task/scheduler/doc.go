// Package scheduler runs tasks on fixed timing rules.
//
// Two runner kinds exist:
//   - interval: invoke, then wait a fixed duration (never less than MinInterval)
//   - daily: wait until the next local HH:MM, then invoke
//
// Each runner is a long-lived goroutine owned by a supervisor. Canceling the
// supervisor context is the stop signal: waits are context-aware, so a runner
// exits as soon as it observes the cancellation instead of finishing its sleep.
//
// Runners never inspect a task's result and never retry.
package scheduler
