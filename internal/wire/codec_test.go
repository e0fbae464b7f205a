// ABOUTME: Tests for the chunk wire codec.
// ABOUTME: Covers round-trips, field naming on the wire, and unknown-tag tolerance.

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_RoundTrip(t *testing.T) {
	chunks := []Chunk{
		TextDelta{Delta: "hello"},
		ReasoningDelta{Delta: "thinking..."},
		ToolInputStart{ToolCallID: "t1", ToolName: "Read"},
		ToolInputDelta{ToolCallID: "t1", Delta: `{"file_path":"/a.`},
		ToolCall{ToolCallID: "t1", ToolName: "Read", Input: json.RawMessage(`{"file_path":"/a.txt"}`)},
		ToolResult{ToolCallID: "t1", Output: json.RawMessage(`"contents"`), IsError: false},
		ToolResult{ToolCallID: "t2", Output: json.RawMessage(`"boom"`), IsError: true},
		Finish{Reason: "stop", Usage: &Usage{InputTokens: 12, OutputTokens: 34}},
		Error{Message: "upstream dropped"},
	}

	for _, in := range chunks {
		data, err := Marshal(in)
		require.NoError(t, err)

		out, err := Unmarshal(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCodec_WireFieldNames(t *testing.T) {
	data, err := Marshal(ToolCall{ToolCallID: "t1", ToolName: "Read", Input: json.RawMessage(`{}`)})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "tool-call", raw["type"])
	assert.Equal(t, "t1", raw["toolCallId"])
	assert.Equal(t, "Read", raw["toolName"])
}

func TestCodec_UnknownTypeIsIgnored(t *testing.T) {
	out, err := Unmarshal([]byte(`{"type":"source-url","url":"https://example.com"}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCodec_MalformedEnvelopeIsAnError(t *testing.T) {
	_, err := Unmarshal([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(Finish{Reason: "stop"}))
	assert.True(t, Terminal(Error{Message: "x"}))
	assert.False(t, Terminal(TextDelta{Delta: "x"}))
	assert.False(t, Terminal(ToolResult{ToolCallID: "t1"}))
}
