// Package store persists task, plan, and usage state to a local SQLite
// database. Plans are stored as JSON snapshots; the database is the source
// of truth for restarting interrupted work.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seva/axon/internal/domain"
)

// Store wraps the SQLite handle.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the data directory if needed and opens the database with
// WAL journaling.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "axon.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		capabilities_json TEXT,
		priority TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		submitted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_submitted ON tasks(submitted_at DESC);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_plans_task ON plans(task_id);

	CREATE TABLE IF NOT EXISTS results (
		task_id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		output_json TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		completed_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS usage (
		session_id TEXT PRIMARY KEY,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ioErr tags a database failure with the ErrIO sentinel so callers can
// classify it without inspecting driver error strings.
func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIO, err)
}

func codecErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrSerialization, err)
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Task operations

func (s *Store) CreateTask(ctx context.Context, t *domain.Task) error {
	caps, _ := json.Marshal(t.Capabilities)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, description, capabilities_json, priority, submitted_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.Description, string(caps), string(t.Priority), t.SubmittedAt)
	return ioErr("create task", err)
}

func (s *Store) GetTask(ctx context.Context, id string) (*domain.Task, string, error) {
	var t domain.Task
	var caps sql.NullString
	var priority, status string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, description, capabilities_json, priority, status, submitted_at
		FROM tasks WHERE id = ?
	`, id).Scan(&t.ID, &t.Description, &caps, &priority, &status, &t.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, "", ioErr("get task", err)
	}

	t.Priority = domain.Priority(priority)
	if caps.Valid && caps.String != "" {
		json.Unmarshal([]byte(caps.String), &t.Capabilities)
	}
	return &t, status, nil
}

// SetTaskStatus records the task's lifecycle stage: queued, routed,
// planning, executing, completed, failed, cancelled.
func (s *Store) SetTaskStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return ioErr("set task status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, capabilities_json, priority, submitted_at
		FROM tasks ORDER BY submitted_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, ioErr("list tasks", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		var t domain.Task
		var caps sql.NullString
		var priority string
		if err := rows.Scan(&t.ID, &t.Description, &caps, &priority, &t.SubmittedAt); err != nil {
			return nil, ioErr("scan task", err)
		}
		t.Priority = domain.Priority(priority)
		if caps.Valid && caps.String != "" {
			json.Unmarshal([]byte(caps.String), &t.Capabilities)
		}
		tasks = append(tasks, &t)
	}
	return tasks, ioErr("list tasks", rows.Err())
}

// Plan snapshots

// SavePlan upserts the full plan snapshot. Called on every step transition
// so a restart can resume from the last persisted cursor.
func (s *Store) SavePlan(ctx context.Context, taskID string, p *domain.ExecutionPlan) error {
	snapshot, err := json.Marshal(p)
	if err != nil {
		return codecErr("marshal plan", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, task_id, status, snapshot_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status,
			snapshot_json = excluded.snapshot_json, updated_at = excluded.updated_at
	`, p.ID, taskID, string(p.Status), string(snapshot), time.Now().UTC())
	return ioErr("save plan", err)
}

func (s *Store) GetPlan(ctx context.Context, id string) (*domain.ExecutionPlan, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot_json FROM plans WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, ioErr("get plan", err)
	}

	var p domain.ExecutionPlan
	if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
		return nil, codecErr("unmarshal plan", err)
	}
	return &p, nil
}

func (s *Store) GetPlanForTask(ctx context.Context, taskID string) (*domain.ExecutionPlan, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot_json FROM plans WHERE task_id = ? ORDER BY updated_at DESC LIMIT 1
	`, taskID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, ioErr("get plan for task", err)
	}

	var p domain.ExecutionPlan
	if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
		return nil, codecErr("unmarshal plan", err)
	}
	return &p, nil
}

// Results

func (s *Store) SaveResult(ctx context.Context, r *domain.TaskResult) error {
	output, _ := json.Marshal(r.Output)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (task_id, agent_id, success, output_json, error, duration_ms, tokens_used, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET agent_id = excluded.agent_id,
			success = excluded.success, output_json = excluded.output_json,
			error = excluded.error, duration_ms = excluded.duration_ms,
			tokens_used = excluded.tokens_used, completed_at = excluded.completed_at
	`, r.TaskID, r.AgentID, r.Success, string(output), r.Error,
		r.Duration.Milliseconds(), r.TokensUsed, r.CompletedAt)
	return ioErr("save result", err)
}

func (s *Store) GetResult(ctx context.Context, taskID string) (*domain.TaskResult, error) {
	var r domain.TaskResult
	var output sql.NullString
	var durationMS int64

	err := s.db.QueryRowContext(ctx, `
		SELECT task_id, agent_id, success, output_json, error, duration_ms, tokens_used, completed_at
		FROM results WHERE task_id = ?
	`, taskID).Scan(&r.TaskID, &r.AgentID, &r.Success, &output, &r.Error,
		&durationMS, &r.TokensUsed, &r.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, ioErr("get result", err)
	}

	r.Duration = time.Duration(durationMS) * time.Millisecond
	if output.Valid && output.String != "" {
		json.Unmarshal([]byte(output.String), &r.Output)
	}
	return &r, nil
}

// Usage

// RecordUsage accumulates token counts for a session.
func (s *Store) RecordUsage(ctx context.Context, sessionID string, input, output int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (session_id, input_tokens, output_tokens, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			input_tokens = input_tokens + excluded.input_tokens,
			output_tokens = output_tokens + excluded.output_tokens,
			updated_at = excluded.updated_at
	`, sessionID, input, output, time.Now().UTC())
	return ioErr("record usage", err)
}

func (s *Store) GetUsage(ctx context.Context, sessionID string) (input, output int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT input_tokens, output_tokens FROM usage WHERE session_id = ?`,
		sessionID).Scan(&input, &output)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	return input, output, ioErr("get usage", err)
}
