// Package stream provides resumable chunk streams over a durable buffer.
//
// # Overview
//
// A Manager wraps a producing chunk stream: every emitted chunk is mirrored
// into the durable buffer under the session key while being forwarded to
// the live consumer. A client that disconnects mid-response can Resume with
// the offset it last consumed; the manager replays the buffered backlog and
// then attaches live if production is still ongoing.
//
// # Degradation
//
// The durable buffer is a best-effort enhancement, never a hard dependency
// of basic streaming. Any buffer failure — at create, append, or resume —
// degrades the affected path to plain pass-through. The first failure is
// logged; later ones are silent. Resume lookups fail fast rather than
// retrying mid-request.
//
// # Execution contexts
//
// Two process-wide managers exist, differing only in how completion is
// signaled:
//
//   - Interactive: the session completes when the producer channel closes.
//   - Background: the session completes only on an explicit finish or
//     error chunk, so batch producers can detach and re-attach.
//
// Both are created lazily on first use; ResetManagers discards them for
// tests.
//
// # Concurrency
//
// Each session key is exclusive to one producer. Sessions take no locks
// across keys; replay-then-attach holds the single session lock so no chunk
// can slip into the gap between the buffered backlog and the live feed.
package stream
