// Package orchestrator applies push feed messages and pulled snapshots to the
// store and publishes the resulting changes on the event bus.
//
// Every board update runs as a task. Tasks hold one slot of a bounded
// semaphore and the lock of their (world, item) shard for the whole
// read-diff-write, so two updates of the same board never interleave.
// A failed task is logged and counted; it never stops the engine.
package orchestrator
