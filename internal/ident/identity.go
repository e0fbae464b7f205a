// ABOUTME: ConversationID and the reserved pending sentinel used before an id is assigned.
// ABOUTME: Builds the namespaced record keys shared by queue and draft persistence.

package ident

// ConversationID distinguishes one chat thread from another. Before a
// response completes and a permanent id is assigned, the client operates
// under the Pending sentinel. The pending→concrete transition is the most
// error-prone moment for draft and queue state; callers must treat it as a
// continuation of the same conversation, not a navigation.
type ConversationID string

// Pending is the reserved sentinel for a conversation that has not yet been
// assigned a permanent id.
const Pending ConversationID = "pending"

// IsPending reports whether the id is the reserved sentinel.
func (c ConversationID) IsPending() bool {
	return c == Pending
}

// IsConcrete reports whether the id is a stable, assigned identity.
func (c ConversationID) IsConcrete() bool {
	return c != "" && c != Pending
}

// Key builds the durable record key for a namespace and identity, in the
// form "{namespace}:{id}". The pending sentinel gets a key like any other
// identity so unsent state survives a reload mid-generation.
func Key(namespace string, id ConversationID) string {
	return namespace + ":" + string(id)
}
