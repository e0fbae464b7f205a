// ABOUTME: Accumulator folds an ordered chunk stream into response text and tool call state.
// ABOUTME: Tool states only advance; partial JSON input never replaces the last good value.

package accumulate

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/2389/stream-relay/internal/wire"
)

// ToolState is the lifecycle state of one tool invocation.
type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolErrored         ToolState = "errored"
)

// stateRank orders tool states so that updates can only move forward.
// The two terminal states share a rank; whichever arrives first wins.
func stateRank(s ToolState) int {
	switch s {
	case ToolInputStreaming:
		return 0
	case ToolInputAvailable:
		return 1
	case ToolOutputAvailable, ToolErrored:
		return 2
	}
	return -1
}

// ToolCallRecord is the accumulated view of one tool invocation. RawInput
// grows as argument fragments stream in; Input holds the last fully
// parseable snapshot of those fragments and stays nil until one exists.
type ToolCallRecord struct {
	ToolCallID string
	ToolName   string
	State      ToolState
	RawInput   string
	Input      json.RawMessage
	Output     json.RawMessage
}

// Accumulator consumes chunks in emission order and maintains the response
// text, reasoning, and per-tool-call records. It is not safe for concurrent
// use: events for one response must be applied sequentially, never in
// parallel.
type Accumulator struct {
	text      strings.Builder
	reasoning strings.Builder

	tools   []*ToolCallRecord
	toolIdx map[string]*ToolCallRecord

	finishReason string
	usage        *wire.Usage
	errMessage   string
	done         bool

	logger *slog.Logger
}

// New creates an empty accumulator. Pass nil logger for default.
func New(logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		toolIdx: make(map[string]*ToolCallRecord),
		logger:  logger.With("component", "accumulate"),
	}
}

// Apply folds one chunk into the accumulated state. Chunks arriving after a
// terminal chunk are ignored. A nil chunk (an unknown wire tag the codec
// skipped) is a no-op.
func (a *Accumulator) Apply(c wire.Chunk) {
	if c == nil || a.done {
		return
	}

	switch v := c.(type) {
	case wire.TextDelta:
		a.text.WriteString(v.Delta)
	case wire.ReasoningDelta:
		a.reasoning.WriteString(v.Delta)
	case wire.ToolInputStart:
		a.onInputStart(v)
	case wire.ToolInputDelta:
		a.onInputDelta(v)
	case wire.ToolCall:
		a.onToolCall(v)
	case wire.ToolResult:
		a.onResult(v)
	case wire.Finish:
		a.finishReason = v.Reason
		a.usage = v.Usage
		a.done = true
	case wire.Error:
		a.errMessage = v.Message
		a.done = true
	}
}

// onInputStart makes the tool visible immediately with empty input.
func (a *Accumulator) onInputStart(v wire.ToolInputStart) {
	rec := a.record(v.ToolCallID)
	if rec.ToolName == "" {
		rec.ToolName = v.ToolName
	}
	a.advance(rec, ToolInputStreaming)
}

// onInputDelta appends the fragment and re-attempts a parse. Providers
// stream large structured arguments as incomplete JSON; an unparseable
// buffer is expected, not an error, and the previously exposed value is
// kept so the UI never renders garbled input.
func (a *Accumulator) onInputDelta(v wire.ToolInputDelta) {
	rec := a.record(v.ToolCallID)
	if stateRank(rec.State) > stateRank(ToolInputStreaming) {
		// Complete input already arrived; late fragments carry nothing new.
		return
	}
	a.advance(rec, ToolInputStreaming)
	rec.RawInput += v.Delta

	if json.Valid([]byte(rec.RawInput)) {
		rec.Input = json.RawMessage(rec.RawInput)
	}
}

// onToolCall records the complete, authoritative input. It works even when
// no start/delta events were seen for this id.
func (a *Accumulator) onToolCall(v wire.ToolCall) {
	rec := a.record(v.ToolCallID)
	if v.ToolName != "" {
		rec.ToolName = v.ToolName
	}
	if a.advance(rec, ToolInputAvailable) {
		rec.Input = v.Input
		rec.RawInput = string(v.Input)
	}
}

// onResult attaches the tool output and moves to a terminal state.
func (a *Accumulator) onResult(v wire.ToolResult) {
	rec := a.record(v.ToolCallID)
	target := ToolOutputAvailable
	if v.IsError {
		target = ToolErrored
	}
	if a.advance(rec, target) {
		rec.Output = v.Output
	}
}

// record returns the tool record for an id, creating it in first-seen
// position if needed.
func (a *Accumulator) record(toolCallID string) *ToolCallRecord {
	if rec, ok := a.toolIdx[toolCallID]; ok {
		return rec
	}
	rec := &ToolCallRecord{
		ToolCallID: toolCallID,
		State:      ToolInputStreaming,
	}
	a.tools = append(a.tools, rec)
	a.toolIdx[toolCallID] = rec
	return rec
}

// advance moves a record to the target state if that is not a regression.
// Returns true if the record is now at the target state.
func (a *Accumulator) advance(rec *ToolCallRecord, target ToolState) bool {
	if stateRank(target) < stateRank(rec.State) {
		a.logger.Debug("ignoring tool state regression",
			"tool_call_id", rec.ToolCallID,
			"from", rec.State,
			"to", target)
		return false
	}
	if stateRank(target) == stateRank(rec.State) && rec.State != target && stateRank(target) == 2 {
		// Terminal states don't flip between output-available and errored.
		return false
	}
	rec.State = target
	return true
}

// Finalize ends the response without a terminal chunk, as happens when the
// user stops generation. Tool records short of a terminal state keep their
// current value; no synthetic error is injected.
func (a *Accumulator) Finalize() {
	a.done = true
}

// Done reports whether a terminal chunk was applied or Finalize was called.
func (a *Accumulator) Done() bool {
	return a.done
}

// Text returns the assembled response text so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Reasoning returns the assembled reasoning text so far.
func (a *Accumulator) Reasoning() string {
	return a.reasoning.String()
}

// FinishReason returns the finish reason, empty until a finish chunk arrives.
func (a *Accumulator) FinishReason() string {
	return a.finishReason
}

// Usage returns token usage, nil until a finish chunk carries it.
func (a *Accumulator) Usage() *wire.Usage {
	return a.usage
}

// ErrMessage returns the terminal error message, empty unless an error
// chunk ended the response.
func (a *Accumulator) ErrMessage() string {
	return a.errMessage
}

// Tools returns the tool records in first-seen order. Later updates mutate
// records in place and never reorder the list. The returned slice shares
// the accumulator's records; callers must not mutate them.
func (a *Accumulator) Tools() []*ToolCallRecord {
	out := make([]*ToolCallRecord, len(a.tools))
	copy(out, a.tools)
	return out
}
