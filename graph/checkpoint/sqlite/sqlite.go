//
// Copyright (C) 2026 The loom Authors. All rights reserved.
//
// loom is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-backed checkpoint storage for graph
// execution state persistence and recovery. Checkpoints are stored as
// JSON blobs keyed by thread and checkpoint ID.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loomhq/loom/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"thread_id TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"step INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"PRIMARY KEY (thread_id, checkpoint_id)" +
		")"

	sqliteInsertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"thread_id, checkpoint_id, parent_checkpoint_id, step, checkpoint_json) " +
		"VALUES (?, ?, ?, ?, ?)"

	// Insertion order is chain order. Checkpoint IDs embed the step
	// number, but a resumed superstep commits under the same step as the
	// interrupt checkpoint it supersedes, so rowid is the sort key.
	sqliteSelectLatest = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY rowid DESC LIMIT 1"

	sqliteSelectAllDesc = "SELECT checkpoint_json FROM checkpoints " +
		"WHERE thread_id = ? ORDER BY rowid DESC"

	sqliteDeleteThread = "DELETE FROM checkpoints WHERE thread_id = ?"
)

// Saver is a SQLite-backed implementation of graph.CheckpointSaver. It
// expects an initialized *sql.DB with a SQLite driver registered and
// creates its schema on construction. The caller owns the DB; Close does
// not close it.
type Saver struct {
	db *sql.DB
}

// NewSaver creates a saver on the provided DB, creating tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	return &Saver{db: db}, nil
}

// Put appends a checkpoint to its thread's chain.
func (s *Saver) Put(ctx context.Context, ckpt *graph.Checkpoint) error {
	if ckpt == nil {
		return errors.New("checkpoint is nil")
	}
	if ckpt.ThreadID == "" {
		return errors.New("thread id is required")
	}
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", ckpt.ID, err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteInsertCheckpoint,
		ckpt.ThreadID, ckpt.ID, ckpt.ParentID, ckpt.Meta.Step, data); err != nil {
		return fmt.Errorf("insert checkpoint %s: %w", ckpt.ID, err)
	}
	return nil
}

// Latest returns the most recent checkpoint of the thread, or nil when
// the thread has none.
func (s *Saver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectLatest, threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	return unmarshalCheckpoint(data)
}

// List returns the thread's checkpoints, newest first.
func (s *Saver) List(ctx context.Context, threadID string) ([]*graph.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectAllDesc, threadID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*graph.Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		ckpt, err := unmarshalCheckpoint(data)
		if err != nil {
			return nil, err
		}
		out = append(out, ckpt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

// DeleteThread removes every checkpoint of the thread.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDeleteThread, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Close releases saver resources. The underlying DB stays open.
func (s *Saver) Close() error {
	return nil
}

func unmarshalCheckpoint(data []byte) (*graph.Checkpoint, error) {
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &ckpt, nil
}
