package stream

// EventType identifies one kind of server-sent event on the chat stream.
type EventType string

const (
	EventMessageStart   EventType = "message.start"
	EventMessageDelta   EventType = "message.delta"
	EventMessageEnd     EventType = "message.end"
	EventReasoningStart EventType = "reasoning.start"
	EventReasoningDelta EventType = "reasoning.delta"
	EventReasoningEnd   EventType = "reasoning.end"
	EventToolCallStart  EventType = "tool_call.start"
	EventToolCallArgs   EventType = "tool_call.arguments"
	EventToolCallOK     EventType = "tool_call.success"
	EventToolCallFailed EventType = "tool_call.failure"
	EventModelLoad      EventType = "model_load.progress"
	EventPromptProgress EventType = "prompt_processing.progress"
	EventError          EventType = "error"
	EventChatEnd        EventType = "chat.end"
)

// deltaPayload carries incremental content for message/reasoning deltas.
type deltaPayload struct {
	Content string `json:"content"`
}

// toolCallStartPayload opens an in-flight tool call.
type toolCallStartPayload struct {
	CallID string `json:"callId"`
	Name   string `json:"name"`
}

// toolCallArgsPayload extends the in-flight call's argument text.
type toolCallArgsPayload struct {
	Arguments string `json:"arguments"`
}

// toolCallEndPayload finalizes the in-flight call.
type toolCallEndPayload struct {
	Provider string `json:"provider,omitempty"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
}

// progressPayload reports model load / prompt processing progress in [0,1].
type progressPayload struct {
	Progress float64 `json:"progress"`
	Model    string  `json:"model,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Usage is the token accounting reported at chat.end.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// chatEndPayload carries the authoritative response identity and usage.
type chatEndPayload struct {
	ResponseID string `json:"responseId"`
	Usage      Usage  `json:"usage"`
}

// ToolCall is a finalized tool call observed on the stream.
type ToolCall struct {
	CallID    string `json:"callId"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Provider  string `json:"provider,omitempty"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Result is the accumulated outcome of one streamed chat.
type Result struct {
	ResponseID string     `json:"responseId"`
	Content    string     `json:"content"`
	Reasoning  string     `json:"reasoning"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	Usage      Usage      `json:"usage"`
}

// Callbacks are the optional per-event hooks a consumer may supply. They are
// invoked synchronously from the stream read loop; a consumer must not call
// back into the same decoder from inside a callback.
type Callbacks struct {
	OnMessageStart   func()
	OnMessageDelta   func(delta string)
	OnMessageEnd     func()
	OnReasoningStart func()
	OnReasoningDelta func(delta string)
	OnReasoningEnd   func()
	OnToolCallStart  func(callID, name string)
	OnToolCallArgs   func(callID, arguments string)
	OnToolCallDone   func(call ToolCall)
	OnModelLoad      func(progress float64, model string)
	OnPromptProgress func(progress float64)
	OnError          func(message string)
	OnChatEnd        func(result Result)
}
