// Package audit appends one JSONL record per dispatched tool call. Writes
// are buffered so recording never blocks the agent loop; when the queue is
// full the oldest pending line is dropped. Best effort only.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const queueSize = 256

// Record is one audit line.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	TurnID    string         `json:"turn_id"`
	Iteration int            `json:"iteration"`
	Origin    string         `json:"origin,omitempty"` // agent | rpc
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`
	Success   bool           `json:"success"`
	Summary   string         `json:"summary,omitempty"`
}

type Sink struct {
	path  string
	queue chan []byte

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func NewSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	s := &Sink{
		path:  path,
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

func (s *Sink) Path() string { return s.path }

func (s *Sink) Record(r Record) {
	if s.closed.Load() {
		return
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	line := append(b, '\n')

	select {
	case s.queue <- line:
		return
	default:
	}

	// Queue full: drop the oldest pending line so this one can proceed.
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- line:
	default:
	}
}

// Close drains the queue to disk and stops the write loop. Callers must
// stop recording before closing; records arriving afterwards are dropped.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.queue)
	})
	<-s.done
}

func (s *Sink) writeLoop() {
	defer close(s.done)
	for line := range s.queue {
		_ = s.appendLine(line)
	}
}

func (s *Sink) appendLine(line []byte) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}
