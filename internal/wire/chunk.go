// ABOUTME: Chunk is the sealed union of incremental stream events from a model response.
// ABOUTME: Transport errors are not chunks; they surface from the stream itself.

package wire

import "encoding/json"

// Chunk is a sealed interface representing one incremental unit of model
// output. The unexported marker method prevents external implementations,
// so a switch over chunk types can be exhaustive.
type Chunk interface {
	chunk()
}

// TextDelta carries an increment of assistant-visible response text.
type TextDelta struct {
	Delta string
}

func (TextDelta) chunk() {}

// ReasoningDelta carries an increment of model reasoning text.
type ReasoningDelta struct {
	Delta string
}

func (ReasoningDelta) chunk() {}

// ToolInputStart announces a tool invocation before any arguments have
// streamed. The tool becomes visible immediately with empty input.
type ToolInputStart struct {
	ToolCallID string
	ToolName   string
}

func (ToolInputStart) chunk() {}

// ToolInputDelta carries a fragment of the tool's JSON arguments. Fragments
// are not guaranteed to be individually parseable.
type ToolInputDelta struct {
	ToolCallID string
	Delta      string
}

func (ToolInputDelta) chunk() {}

// ToolCall carries the complete, authoritative tool input. It may arrive
// without any preceding start/delta events for the same id.
type ToolCall struct {
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
}

func (ToolCall) chunk() {}

// ToolResult carries the output of an executed tool call.
type ToolResult struct {
	ToolCallID string
	Output     json.RawMessage
	IsError    bool
}

func (ToolResult) chunk() {}

// Finish terminates a response normally.
type Finish struct {
	Reason string
	Usage  *Usage
}

func (Finish) chunk() {}

// Error terminates a response abnormally. Already-applied client state is
// retained; this is a terminal marker, not a rollback.
type Error struct {
	Message string
}

func (Error) chunk() {}

// Usage reports token accounting for a finished response.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Terminal reports whether the chunk ends the response.
func Terminal(c Chunk) bool {
	switch c.(type) {
	case Finish, Error:
		return true
	}
	return false
}

// Interface compliance checks.
var (
	_ Chunk = TextDelta{}
	_ Chunk = ReasoningDelta{}
	_ Chunk = ToolInputStart{}
	_ Chunk = ToolInputDelta{}
	_ Chunk = ToolCall{}
	_ Chunk = ToolResult{}
	_ Chunk = Finish{}
	_ Chunk = Error{}
)
