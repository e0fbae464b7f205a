// ABOUTME: JSON envelope codec for Chunk values crossing the wire.
// ABOUTME: Unknown type tags decode to nil so newer producers don't break older consumers.

package wire

import (
	"encoding/json"
	"fmt"
)

// Wire type tags. These are the contract with producers and must not change.
const (
	TypeTextDelta      = "text-delta"
	TypeReasoning      = "reasoning"
	TypeToolInputStart = "tool-input-start"
	TypeToolInputDelta = "tool-input-delta"
	TypeToolCall       = "tool-call"
	TypeToolResult     = "tool-result"
	TypeFinish         = "finish"
	TypeError          = "error"
)

// envelope is the flattened wire shape. Only the fields relevant to the
// tagged type are populated.
type envelope struct {
	Type         string          `json:"type"`
	ToolCallID   string          `json:"toolCallId,omitempty"`
	ToolName     string          `json:"toolName,omitempty"`
	Delta        string          `json:"delta,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	IsError      bool            `json:"isError,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	Message      string          `json:"message,omitempty"`
}

// Marshal encodes a chunk into its wire envelope.
func Marshal(c Chunk) ([]byte, error) {
	var env envelope
	switch v := c.(type) {
	case TextDelta:
		env = envelope{Type: TypeTextDelta, Delta: v.Delta}
	case ReasoningDelta:
		env = envelope{Type: TypeReasoning, Delta: v.Delta}
	case ToolInputStart:
		env = envelope{Type: TypeToolInputStart, ToolCallID: v.ToolCallID, ToolName: v.ToolName}
	case ToolInputDelta:
		env = envelope{Type: TypeToolInputDelta, ToolCallID: v.ToolCallID, Delta: v.Delta}
	case ToolCall:
		env = envelope{Type: TypeToolCall, ToolCallID: v.ToolCallID, ToolName: v.ToolName, Input: v.Input}
	case ToolResult:
		env = envelope{Type: TypeToolResult, ToolCallID: v.ToolCallID, Output: v.Output, IsError: v.IsError}
	case Finish:
		env = envelope{Type: TypeFinish, FinishReason: v.Reason, Usage: v.Usage}
	case Error:
		env = envelope{Type: TypeError, Message: v.Message}
	default:
		return nil, fmt.Errorf("unsupported chunk type %T", c)
	}
	return json.Marshal(env)
}

// Unmarshal decodes a wire envelope into a chunk. A well-formed envelope
// with an unrecognized type tag returns (nil, nil): unknown chunk kinds are
// skipped, not treated as errors.
func Unmarshal(data []byte) (Chunk, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding chunk envelope: %w", err)
	}

	switch env.Type {
	case TypeTextDelta:
		return TextDelta{Delta: env.Delta}, nil
	case TypeReasoning:
		return ReasoningDelta{Delta: env.Delta}, nil
	case TypeToolInputStart:
		return ToolInputStart{ToolCallID: env.ToolCallID, ToolName: env.ToolName}, nil
	case TypeToolInputDelta:
		return ToolInputDelta{ToolCallID: env.ToolCallID, Delta: env.Delta}, nil
	case TypeToolCall:
		return ToolCall{ToolCallID: env.ToolCallID, ToolName: env.ToolName, Input: env.Input}, nil
	case TypeToolResult:
		return ToolResult{ToolCallID: env.ToolCallID, Output: env.Output, IsError: env.IsError}, nil
	case TypeFinish:
		return Finish{Reason: env.FinishReason, Usage: env.Usage}, nil
	case TypeError:
		return Error{Message: env.Message}, nil
	default:
		return nil, nil
	}
}
