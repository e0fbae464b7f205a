// Package draft persists unsent input per conversation and reconciles the
// visible input box across conversation-identity transitions.
//
// The hard case is the pending→concrete transition: the user starts typing
// before the conversation has a permanent id, the first response completes
// and assigns one, and the identity key changes under their cursor. That
// transition must never clear what they are typing — it is the same
// conversation. Only navigating between two distinct, already-concrete
// identities clears the input, and only when the destination has no saved
// draft of its own.
package draft
