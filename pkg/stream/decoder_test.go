package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "event: message.start\n" +
	"data: {}\n" +
	"\n" +
	"event: message.delta\n" +
	"data: {\"content\": \"Hello, \"}\n" +
	"\n" +
	"event: message.delta\n" +
	"data: {\"content\": \"world\"}\n" +
	"\n" +
	"event: message.end\n" +
	"data: {}\n" +
	"\n" +
	"event: chat.end\n" +
	"data: {\"responseId\": \"resp-1\", \"usage\": {\"promptTokens\": 12, \"completionTokens\": 4, \"totalTokens\": 16}}\n" +
	"\n"

func feedAll(d *Decoder, input string) {
	d.Feed([]byte(input))
}

func feedByteByByte(d *Decoder, input string) {
	for i := 0; i < len(input); i++ {
		d.Feed([]byte{input[i]})
	}
}

func TestDecodeMessageStream(t *testing.T) {
	var deltas []string
	d := NewDecoder(Callbacks{
		OnMessageDelta: func(s string) { deltas = append(deltas, s) },
	})
	feedAll(d, sampleStream)

	res := d.Result()
	assert.Equal(t, "Hello, world", res.Content)
	assert.Equal(t, "resp-1", res.ResponseID)
	assert.Equal(t, 16, res.Usage.TotalTokens)
	assert.Equal(t, []string{"Hello, ", "world"}, deltas)
	assert.True(t, d.Ended())
	assert.NoError(t, d.Err())
}

func TestChunkBoundaryInvariance(t *testing.T) {
	// Splitting the byte stream anywhere, even mid-line, must not change the
	// decoded result.
	whole := NewDecoder(Callbacks{})
	feedAll(whole, sampleStream)

	split := NewDecoder(Callbacks{})
	feedByteByByte(split, sampleStream)

	assert.Equal(t, whole.Result(), split.Result())
}

func TestBlankLineResetsFrame(t *testing.T) {
	d := NewDecoder(Callbacks{})
	// The blank line separates the event line from its data, so the data line
	// arrives without a pending event and is dropped.
	feedAll(d, "event: message.delta\n\ndata: {\"content\": \"orphan\"}\n\n")
	assert.Equal(t, "", d.Result().Content)
}

func TestMalformedDataDropped(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: message.delta\n"+
		"data: {not json\n"+
		"\n"+
		"event: message.delta\n"+
		"data: {\"content\": \"still here\"}\n"+
		"\n")
	assert.Equal(t, "still here", d.Result().Content)
}

func TestUnknownEventIgnored(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: something.new\n"+
		"data: {\"x\": 1}\n"+
		"\n"+
		"event: message.delta\n"+
		"data: {\"content\": \"ok\"}\n"+
		"\n")
	assert.Equal(t, "ok", d.Result().Content)
}

func TestReasoningAccumulatesSeparately(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: reasoning.start\ndata: {}\n\n"+
		"event: reasoning.delta\ndata: {\"content\": \"thinking...\"}\n\n"+
		"event: reasoning.end\ndata: {}\n\n"+
		"event: message.delta\ndata: {\"content\": \"answer\"}\n\n")

	res := d.Result()
	assert.Equal(t, "thinking...", res.Reasoning)
	assert.Equal(t, "answer", res.Content)
}

func TestToolCallLifecycle(t *testing.T) {
	var done []ToolCall
	d := NewDecoder(Callbacks{
		OnToolCallDone: func(c ToolCall) { done = append(done, c) },
	})
	feedAll(d, "event: tool_call.start\n"+
		"data: {\"callId\": \"c1\", \"name\": \"read_note\"}\n"+
		"\n"+
		"event: tool_call.arguments\n"+
		"data: {\"arguments\": \"{\\\"path\\\": \"}\n"+
		"\n"+
		"event: tool_call.arguments\n"+
		"data: {\"arguments\": \"\\\"a.md\\\"}\"}\n"+
		"\n"+
		"event: tool_call.success\n"+
		"data: {\"provider\": \"vault\", \"result\": \"content of a\"}\n"+
		"\n")

	require.Len(t, done, 1)
	call := done[0]
	assert.Equal(t, "c1", call.CallID)
	assert.Equal(t, "read_note", call.Name)
	assert.Equal(t, `{"path": "a.md"}`, call.Arguments)
	assert.Equal(t, "content of a", call.Result)
	assert.False(t, call.Failed)
	assert.Equal(t, done, d.Result().ToolCalls)
}

func TestToolCallFailure(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: tool_call.start\n"+
		"data: {\"callId\": \"c2\", \"name\": \"delete_note\"}\n"+
		"\n"+
		"event: tool_call.failure\n"+
		"data: {\"error\": \"not found\"}\n"+
		"\n")

	res := d.Result()
	require.Len(t, res.ToolCalls, 1)
	assert.True(t, res.ToolCalls[0].Failed)
	assert.Equal(t, "not found", res.ToolCalls[0].Error)
}

func TestToolCallArgsWithoutStartDropped(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: tool_call.arguments\n"+
		"data: {\"arguments\": \"stray\"}\n"+
		"\n")
	assert.Empty(t, d.Result().ToolCalls)
}

func TestErrorEventDoesNotStopDecoding(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: message.delta\ndata: {\"content\": \"before\"}\n\n"+
		"event: error\ndata: {\"message\": \"model overloaded\"}\n\n"+
		"event: message.delta\ndata: {\"content\": \" after\"}\n\n")

	assert.Equal(t, "before after", d.Result().Content)
	require.Error(t, d.Err())
	assert.Contains(t, d.Err().Error(), "model overloaded")
}

func TestConsumeSurfacesErrorAfterEOF(t *testing.T) {
	input := "event: message.delta\ndata: {\"content\": \"partial\"}\n\n" +
		"event: error\ndata: {\"message\": \"boom\"}\n\n" +
		"event: message.delta\ndata: {\"content\": \" tail\"}\n\n"

	res, err := Consume(context.Background(), strings.NewReader(input), Callbacks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	// The whole stream was still read to EOF.
	assert.Equal(t, "partial tail", res.Content)
}

func TestConsumeCleanStream(t *testing.T) {
	var ended bool
	res, err := Consume(context.Background(), strings.NewReader(sampleStream), Callbacks{
		OnChatEnd: func(r Result) { ended = true },
	})
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, "Hello, world", res.Content)
	assert.Equal(t, "resp-1", res.ResponseID)
}

func TestConsumeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Consume(ctx, strings.NewReader(sampleStream), Callbacks{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCRLFLines(t *testing.T) {
	d := NewDecoder(Callbacks{})
	feedAll(d, "event: message.delta\r\ndata: {\"content\": \"crlf ok\"}\r\n\r\n")
	assert.Equal(t, "crlf ok", d.Result().Content)
}
