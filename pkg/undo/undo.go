// Package undo keeps a bounded log of reversible vault operations. Every
// mutating tool records the exact inverse of what it did; Undo replays the
// inverses against the store. The log is a best-effort in-memory convenience,
// not a durable WAL.
package undo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vaultclaw/vaultclaw/pkg/logger"
	"github.com/vaultclaw/vaultclaw/pkg/vault"
)

const DefaultCapacity = 10

var ErrEmpty = errors.New("undo log is empty")

// Kind enumerates the primitive reversible operations.
type Kind string

const (
	KindCreateFolder Kind = "create-folder"
	KindCreateFile   Kind = "create-file"
	KindMove         Kind = "move"
	KindRename       Kind = "rename"
	KindDelete       Kind = "delete"
	KindModify       Kind = "modify"
)

// Operation is one primitive step. TargetPath is set for move/rename,
// Content for create-file/modify (and for delete inverses, which need the
// deleted content to restore it). Immutable once recorded.
type Operation struct {
	Kind       Kind   `json:"kind"`
	SourcePath string `json:"sourcePath"`
	TargetPath string `json:"targetPath,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Entry is one undoable action: the forward operations that were applied and
// the reverse operations that restore the prior state. ReverseOperations are
// stored in replay order: applying them front to back undoes the entry.
type Entry struct {
	ID                string      `json:"id"`
	Timestamp         time.Time   `json:"timestamp"`
	Description       string      `json:"description"`
	Operations        []Operation `json:"operations"`
	ReverseOperations []Operation `json:"reverseOperations"`
}

// Log is a bounded LIFO of entries. Pushing past capacity evicts the oldest
// entry: the forward change stays on disk, only the ability to undo it is
// discarded. Safe for concurrent use; JSON-RPC handlers share one Log.
type Log struct {
	mu       sync.Mutex
	entries  []*Entry
	capacity int
	store    vault.Store
}

func NewLog(store vault.Store, capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, store: store}
}

func NewEntry(description string, ops, reverse []Operation) *Entry {
	return &Entry{
		ID:                uuid.NewString(),
		Timestamp:         time.Now(),
		Description:       description,
		Operations:        ops,
		ReverseOperations: reverse,
	}
}

func (l *Log) Push(e *Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		evicted := l.entries[0]
		l.entries = l.entries[1:]
		logger.DebugCF("undo", "Evicted oldest entry", map[string]interface{}{
			"id":          evicted.ID,
			"description": evicted.Description,
		})
	}
}

func (l *Log) Peek() *Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Undo pops the most recent entry and applies its reverse operations in
// stored order. If a reverse operation fails, the partially-reversed entry is
// pushed back so the user can retry or inspect it, and the error propagates.
func (l *Log) Undo(ctx context.Context) (*Entry, error) {
	l.mu.Lock()
	if len(l.entries) == 0 {
		l.mu.Unlock()
		return nil, ErrEmpty
	}
	entry := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	l.mu.Unlock()

	for i, op := range entry.ReverseOperations {
		if err := Apply(ctx, l.store, op); err != nil {
			l.Push(entry)
			return nil, fmt.Errorf("undo %q failed at step %d/%d: %w",
				entry.Description, i+1, len(entry.ReverseOperations), err)
		}
	}
	logger.InfoCF("undo", "Reverted", map[string]interface{}{
		"id":          entry.ID,
		"description": entry.Description,
		"steps":       len(entry.ReverseOperations),
	})
	return entry, nil
}

// Apply executes one primitive operation against the store.
func Apply(ctx context.Context, store vault.Store, op Operation) error {
	switch op.Kind {
	case KindCreateFolder:
		return store.CreateFolder(ctx, op.SourcePath)
	case KindCreateFile:
		return store.Create(ctx, op.SourcePath, op.Content)
	case KindMove, KindRename:
		return store.Rename(ctx, op.SourcePath, op.TargetPath)
	case KindDelete:
		return store.Trash(ctx, op.SourcePath)
	case KindModify:
		return store.Modify(ctx, op.SourcePath, op.Content)
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// Inverse computes the operation that undoes op. For delete and modify the
// prior content must be read before op is applied; callers pass it in.
func Inverse(op Operation, priorContent string) Operation {
	switch op.Kind {
	case KindCreateFolder, KindCreateFile:
		return Operation{Kind: KindDelete, SourcePath: op.SourcePath}
	case KindMove, KindRename:
		return Operation{Kind: op.Kind, SourcePath: op.TargetPath, TargetPath: op.SourcePath}
	case KindDelete:
		return Operation{Kind: KindCreateFile, SourcePath: op.SourcePath, Content: priorContent}
	case KindModify:
		return Operation{Kind: KindModify, SourcePath: op.SourcePath, Content: priorContent}
	default:
		return Operation{}
	}
}

// ExecuteOperations runs a composite forward sequence with all-or-nothing
// semantics. Each successful step's inverse is prepended to the reverse list,
// so the list is already in replay order. On a mid-sequence failure the steps
// completed so far are rolled back before the error is returned. On success
// one composite entry is pushed.
func (l *Log) ExecuteOperations(ctx context.Context, ops []Operation, description string) error {
	var applied []Operation
	var reverse []Operation

	rollback := func() {
		for _, rop := range reverse {
			if rerr := Apply(ctx, l.store, rop); rerr != nil {
				logger.ErrorCF("undo", "Rollback step failed", map[string]interface{}{
					"description": description,
					"kind":        string(rop.Kind),
					"path":        rop.SourcePath,
					"error":       rerr.Error(),
				})
			}
		}
	}

	for i, op := range ops {
		prior := ""
		if op.Kind == KindDelete || op.Kind == KindModify {
			content, err := l.store.Read(ctx, op.SourcePath)
			if err != nil {
				rollback()
				return fmt.Errorf("%s: step %d/%d read prior state: %w", description, i+1, len(ops), err)
			}
			prior = content
		}
		if err := Apply(ctx, l.store, op); err != nil {
			rollback()
			return fmt.Errorf("%s: step %d/%d: %w", description, i+1, len(ops), err)
		}
		applied = append(applied, op)
		reverse = append([]Operation{Inverse(op, prior)}, reverse...)
	}

	l.Push(NewEntry(description, applied, reverse))
	return nil
}
