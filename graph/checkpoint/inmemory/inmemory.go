//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides in-memory checkpoint storage for graph
// execution state persistence and recovery. Suitable for testing and
// single-process use; nothing survives a restart.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/loomhq/loom/graph"
)

// Saver is an in-memory implementation of graph.CheckpointSaver. All
// methods are safe for concurrent use.
type Saver struct {
	mu sync.RWMutex
	// threads holds the checkpoint chain per thread in insertion order,
	// oldest first.
	threads map[string][]*graph.Checkpoint
	// maxCheckpointsPerThread bounds the retained history per thread;
	// the oldest checkpoints are evicted first.
	maxCheckpointsPerThread int
}

// NewSaver creates a new in-memory checkpoint saver.
func NewSaver() *Saver {
	return &Saver{
		threads:                 make(map[string][]*graph.Checkpoint),
		maxCheckpointsPerThread: graph.DefaultMaxCheckpointsPerThread,
	}
}

// WithMaxCheckpointsPerThread sets the retained history bound per thread.
func (s *Saver) WithMaxCheckpointsPerThread(max int) *Saver {
	if max > 0 {
		s.maxCheckpointsPerThread = max
	}
	return s
}

// Put appends a checkpoint to its thread's chain. The chain stores a
// Copy of the argument, so reassigning top-level state fields afterwards
// does not affect it; values nested inside state fields stay shared and
// must be treated as read-only, as State.Clone documents.
func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) error {
	if ckpt == nil {
		return errors.New("checkpoint is nil")
	}
	if ckpt.ThreadID == "" {
		return errors.New("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := append(s.threads[ckpt.ThreadID], ckpt.Copy())
	if overflow := len(chain) - s.maxCheckpointsPerThread; overflow > 0 {
		chain = chain[overflow:]
	}
	s.threads[ckpt.ThreadID] = chain
	return nil
}

// Latest returns the most recent checkpoint of the thread, or nil when
// the thread has none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.threads[threadID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1].Copy(), nil
}

// List returns the thread's checkpoints, newest first.
func (s *Saver) List(ctx context.Context, threadID string) ([]*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.threads[threadID]
	out := make([]*graph.Checkpoint, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].Copy())
	}
	return out, nil
}

// DeleteThread removes every checkpoint of the thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// Close releases resources. The in-memory saver has none.
func (s *Saver) Close() error {
	return nil
}
