// Package queue coordinates messages submitted while a response is still
// streaming.
//
// Messages are held in strict FIFO order per conversation, capped at five.
// When the streaming signal falls, the coordinator waits a short settle
// delay and sends the head item; if more remain, the next drain is
// scheduled on a delay rather than looped, so the UI renders between
// sends. The queue advances only when a send succeeds — a failed head stays
// put for retry.
//
// Every mutation is debounce-persisted under the conversation identity key
// (the pending sentinel included). Switching identity flushes the old
// record and loads a fresh queue; queues never leak across conversations.
package queue
