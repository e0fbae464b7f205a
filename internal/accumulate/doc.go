// Package accumulate folds an ordered stream of response chunks into a
// consistent client-side view of text, reasoning, and tool invocations.
//
// # Tool call state machine
//
// Each tool call id has its own record that moves through:
//
//	input-streaming -> input-available -> output-available | errored
//
// States only advance. A record becomes visible on the first event that
// mentions its id, so the UI can show the tool name before any arguments
// have arrived.
//
// # Partial JSON arguments
//
// Providers stream structured tool arguments as JSON fragments that are
// rarely parseable on their own. The accumulator appends each fragment to
// the raw buffer and re-parses; only a fully valid buffer replaces the
// exposed input. An unparseable intermediate buffer keeps the previous
// value in place — it is progress, not an error.
//
// # Ordering
//
// Chunks for one response must be applied in emission order from a single
// goroutine. The accumulator does no locking; interleaving responses or
// applying chunks in parallel corrupts the view.
package accumulate
