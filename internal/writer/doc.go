// Package writer batches high-frequency store writes.
//
// Every reconciled board bumps its recency timestamp. Writing each bump as
// its own statement would cost one round trip per task, so RecencyWriter
// buffers them, keeps only the newest time per board, and flushes the buffer
// when it fills or when the flush interval elapses.
//
// Reads through the writer flush first, so a gap check never compares
// against stale local state.
package writer
