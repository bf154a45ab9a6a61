// Package chronicle provides an append-only, dual-storage event log for
// multi-agent workflow executions. A Recorder captures a task's intended
// plan, the agents that participated, runtime parameter substitutions, and
// a chronological trace of execution events, persisting each record
// category to its own file while maintaining a unified event index for
// replay and forensic export.
//
// One Recorder instance owns one workflow directory on disk. Tasks within
// a workflow may be recorded fully in parallel; commits to a single task
// are linearized.
package chronicle
