package undo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/dagforge/engine/engineerr"
)

// Stack is a bounded, cursor-based undo history for one graph. Pushing a
// new entry discards any redo branch past the cursor; Undo/Redo move the
// cursor without discarding history either side of it until a new Push
// happens. Entries are compressed with zstd before being handed to the
// configured SnapshotStore.
type Stack struct {
	mu      sync.Mutex
	store   SnapshotStore
	graphID string
	maxDepth int

	entries []string // snapshot IDs, oldest first
	cursor  int       // index into entries of the current state; -1 when empty

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Config configures a Stack.
type Config struct {
	Store    SnapshotStore
	GraphID  string
	MaxDepth int // 0 means unbounded
}

// NewStack builds a Stack over cfg.Store, compressing entries at zstd
// level 3 (zstd.SpeedDefault).
func NewStack(cfg Config) (*Stack, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, engineerr.New(engineerr.Compression, "building zstd encoder").WithCause(err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, engineerr.New(engineerr.Compression, "building zstd decoder").WithCause(err)
	}
	return &Stack{
		store:    cfg.Store,
		graphID:  cfg.GraphID,
		maxDepth: cfg.MaxDepth,
		cursor:   -1,
		encoder:  enc,
		decoder:  dec,
	}, nil
}

// Push compresses data and appends it as the new head of history,
// discarding any redo entries beyond the current cursor and evicting the
// oldest entry once MaxDepth is exceeded.
func (s *Stack) Push(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	compressed := s.encoder.EncodeAll(data, nil)

	for i := s.cursor + 1; i < len(s.entries); i++ {
		if err := s.store.Delete(ctx, s.entries[i]); err != nil {
			return fmt.Errorf("undo: evicting redo entry: %w", err)
		}
	}
	s.entries = s.entries[:s.cursor+1]

	id := uuid.NewString()
	snap := &Snapshot{
		ID:      id,
		GraphID: s.graphID,
		Data:    compressed,
		Seq:     len(s.entries),
	}
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("undo: saving snapshot: %w", err)
	}

	s.entries = append(s.entries, id)
	s.cursor = len(s.entries) - 1

	if s.maxDepth > 0 {
		for len(s.entries) > s.maxDepth {
			oldest := s.entries[0]
			if err := s.store.Delete(ctx, oldest); err != nil {
				return fmt.Errorf("undo: evicting oldest entry: %w", err)
			}
			s.entries = s.entries[1:]
			s.cursor--
		}
	}
	return nil
}

// CanUndo reports whether Undo would succeed.
func (s *Stack) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor > 0
}

// CanRedo reports whether Redo would succeed.
func (s *Stack) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= 0 && s.cursor < len(s.entries)-1
}

// Undo moves the cursor back one entry and returns its decompressed
// payload.
func (s *Stack) Undo(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor <= 0 {
		return nil, engineerr.New(engineerr.ExhaustedAttempts, "nothing to undo")
	}
	s.cursor--
	return s.loadLocked(ctx, s.entries[s.cursor])
}

// Redo moves the cursor forward one entry and returns its decompressed
// payload.
func (s *Stack) Redo(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 || s.cursor >= len(s.entries)-1 {
		return nil, engineerr.New(engineerr.ExhaustedAttempts, "nothing to redo")
	}
	s.cursor++
	return s.loadLocked(ctx, s.entries[s.cursor])
}

// Current returns the decompressed payload at the cursor without moving
// it, or ok=false if the stack is empty.
func (s *Stack) Current(ctx context.Context) (data []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor < 0 {
		return nil, false, nil
	}
	data, err = s.loadLocked(ctx, s.entries[s.cursor])
	return data, err == nil, err
}

func (s *Stack) loadLocked(ctx context.Context, id string) ([]byte, error) {
	snap, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("undo: loading snapshot %s: %w", id, err)
	}
	out, err := s.decoder.DecodeAll(snap.Data, nil)
	if err != nil {
		return nil, engineerr.New(engineerr.Compression, "decompressing snapshot").WithCause(err)
	}
	return out, nil
}

// Len returns the number of entries currently retained in history
// (undo + redo branches).
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// CompressedSize returns the sum of the compressed sizes of every
// retained entry, fetching each from the store.
func (s *Stack) CompressedSize(ctx context.Context) (int64, error) {
	s.mu.Lock()
	entries := append([]string{}, s.entries...)
	s.mu.Unlock()

	var total int64
	for _, id := range entries {
		snap, err := s.store.Load(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("undo: sizing snapshot %s: %w", id, err)
		}
		total += int64(len(snap.Data))
	}
	return total, nil
}

// Close releases the Stack's compression resources. It does not touch
// the underlying store.
func (s *Stack) Close() {
	s.encoder.Close()
	s.decoder.Close()
}
