// Package stream reconstructs typed chat events from a chunked
// server-sent-event text stream. One Decoder instance per stream: all
// accumulation state (content, reasoning, the single in-flight tool call)
// lives on the decoder, never in package globals.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
)

type Decoder struct {
	cb Callbacks

	// line framing
	partial      string
	pendingEvent string
	haveEvent    bool

	// accumulation
	content   strings.Builder
	reasoning strings.Builder
	inflight  *ToolCall
	calls     []ToolCall
	respID    string
	usage     Usage
	firstErr  error
	ended     bool
}

func NewDecoder(cb Callbacks) *Decoder {
	return &Decoder{cb: cb}
}

// Feed consumes one transport chunk. Chunks may split lines (and even UTF-8
// sequences) arbitrarily; complete lines are processed, the trailing fragment
// is kept for the next chunk.
func (d *Decoder) Feed(chunk []byte) {
	d.partial += string(chunk)
	for {
		idx := strings.IndexByte(d.partial, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(d.partial[:idx], "\r")
		d.partial = d.partial[idx+1:]
		d.processLine(line)
	}
}

func (d *Decoder) processLine(line string) {
	if strings.TrimSpace(line) == "" {
		// Blank line resets the in-progress frame without emitting.
		d.pendingEvent = ""
		d.haveEvent = false
		return
	}
	if name, ok := strings.CutPrefix(line, "event:"); ok {
		d.pendingEvent = strings.TrimSpace(name)
		d.haveEvent = true
		return
	}
	if data, ok := strings.CutPrefix(line, "data:"); ok {
		if !d.haveEvent {
			logger.DebugC("stream", "data line without event line, dropped")
			return
		}
		d.dispatch(EventType(d.pendingEvent), strings.TrimSpace(data))
		d.pendingEvent = ""
		d.haveEvent = false
	}
}

func (d *Decoder) dispatch(typ EventType, data string) {
	unmarshal := func(v any) bool {
		if err := json.Unmarshal([]byte(data), v); err != nil {
			logger.WarnCF("stream", "Dropping event with malformed data", map[string]interface{}{
				"event": string(typ),
				"error": err.Error(),
			})
			return false
		}
		return true
	}

	switch typ {
	case EventMessageStart:
		if d.cb.OnMessageStart != nil {
			d.cb.OnMessageStart()
		}
	case EventMessageDelta:
		var p deltaPayload
		if !unmarshal(&p) {
			return
		}
		d.content.WriteString(p.Content)
		if d.cb.OnMessageDelta != nil {
			d.cb.OnMessageDelta(p.Content)
		}
	case EventMessageEnd:
		if d.cb.OnMessageEnd != nil {
			d.cb.OnMessageEnd()
		}
	case EventReasoningStart:
		if d.cb.OnReasoningStart != nil {
			d.cb.OnReasoningStart()
		}
	case EventReasoningDelta:
		var p deltaPayload
		if !unmarshal(&p) {
			return
		}
		d.reasoning.WriteString(p.Content)
		if d.cb.OnReasoningDelta != nil {
			d.cb.OnReasoningDelta(p.Content)
		}
	case EventReasoningEnd:
		if d.cb.OnReasoningEnd != nil {
			d.cb.OnReasoningEnd()
		}
	case EventToolCallStart:
		var p toolCallStartPayload
		if !unmarshal(&p) {
			return
		}
		if d.inflight != nil {
			logger.WarnCF("stream", "tool_call.start while a call is in flight, dropping previous", map[string]interface{}{
				"previous": d.inflight.Name,
			})
		}
		d.inflight = &ToolCall{CallID: p.CallID, Name: p.Name}
		if d.cb.OnToolCallStart != nil {
			d.cb.OnToolCallStart(p.CallID, p.Name)
		}
	case EventToolCallArgs:
		var p toolCallArgsPayload
		if !unmarshal(&p) {
			return
		}
		if d.inflight == nil {
			logger.DebugC("stream", "tool_call.arguments without start, dropped")
			return
		}
		d.inflight.Arguments += p.Arguments
		if d.cb.OnToolCallArgs != nil {
			d.cb.OnToolCallArgs(d.inflight.CallID, d.inflight.Arguments)
		}
	case EventToolCallOK, EventToolCallFailed:
		var p toolCallEndPayload
		if !unmarshal(&p) {
			return
		}
		if d.inflight == nil {
			logger.DebugC("stream", "tool_call end without start, dropped")
			return
		}
		call := *d.inflight
		call.Provider = p.Provider
		call.Result = p.Result
		call.Error = p.Error
		call.Failed = typ == EventToolCallFailed
		d.inflight = nil
		d.calls = append(d.calls, call)
		if d.cb.OnToolCallDone != nil {
			d.cb.OnToolCallDone(call)
		}
	case EventModelLoad:
		var p progressPayload
		if !unmarshal(&p) {
			return
		}
		if d.cb.OnModelLoad != nil {
			d.cb.OnModelLoad(p.Progress, p.Model)
		}
	case EventPromptProgress:
		var p progressPayload
		if !unmarshal(&p) {
			return
		}
		if d.cb.OnPromptProgress != nil {
			d.cb.OnPromptProgress(p.Progress)
		}
	case EventError:
		var p errorPayload
		if !unmarshal(&p) {
			return
		}
		// The stream keeps being read to EOF; the error is surfaced to the
		// caller after teardown.
		if d.firstErr == nil {
			d.firstErr = fmt.Errorf("stream error: %s", p.Message)
		}
		if d.cb.OnError != nil {
			d.cb.OnError(p.Message)
		}
	case EventChatEnd:
		var p chatEndPayload
		if !unmarshal(&p) {
			return
		}
		// chat.end is authoritative: its id and usage supersede partials.
		d.respID = p.ResponseID
		d.usage = p.Usage
		d.ended = true
		if d.cb.OnChatEnd != nil {
			d.cb.OnChatEnd(d.snapshot())
		}
	default:
		logger.DebugCF("stream", "Unknown event type, dropped", map[string]interface{}{
			"event": string(typ),
		})
	}
}

func (d *Decoder) snapshot() Result {
	calls := make([]ToolCall, len(d.calls))
	copy(calls, d.calls)
	return Result{
		ResponseID: d.respID,
		Content:    d.content.String(),
		Reasoning:  d.reasoning.String(),
		ToolCalls:  calls,
		Usage:      d.usage,
	}
}

// Result returns the accumulated state so far.
func (d *Decoder) Result() Result { return d.snapshot() }

// Err returns the first error event observed on the stream, if any.
func (d *Decoder) Err() error { return d.firstErr }

// Ended reports whether a chat.end event has been observed.
func (d *Decoder) Ended() bool { return d.ended }

// Consume reads the transport to end-of-stream, feeding the decoder. Reading
// stops only when the reader is exhausted or the context is cancelled; error
// events do not terminate the read. After teardown the first stream error is
// returned so the caller's wait fails.
func Consume(ctx context.Context, r io.Reader, cb Callbacks) (Result, error) {
	d := NewDecoder(cb)
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return d.Result(), err
		}
		n, err := r.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return d.Result(), fmt.Errorf("read stream: %w", err)
		}
	}
	return d.Result(), d.Err()
}
