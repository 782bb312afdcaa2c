// Package journal keeps a local audit trail of operator actions (triage,
// delete, stop, launch) and their outcome as reported by the backend.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/database"
	"github.com/google/uuid"
)

const table = "operator_actions"

// Kind names an operator action.
type Kind string

const (
	KindTriage Kind = "triage"
	KindDelete Kind = "delete"
	KindStop   Kind = "stop"
	KindLaunch Kind = "launch"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Action is one journal row.
type Action struct {
	ID        string `db:"id"         json:"id"`
	Kind      Kind   `db:"kind"       json:"kind"`
	FindingID int64  `db:"finding_id" json:"finding_id,omitempty"`
	JobID     int64  `db:"job_id"     json:"job_id,omitempty"`
	Target    string `db:"target"     json:"target,omitempty"`
	State     string `db:"state"      json:"state,omitempty"`
	Outcome   string `db:"outcome"    json:"outcome"`
	Error     string `db:"error_msg"  json:"error,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// Recorder accepts actions. *Journal implements it; callers that do not
// keep a journal pass nil.
type Recorder interface {
	Record(ctx context.Context, a Action) error
}

// Journal persists actions in the configured database.
type Journal struct {
	db  database.DB
	now func() time.Time
}

// New wraps db. Migrations must already be applied.
func New(db database.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Record stores a, assigning an id and timestamp when missing.
func (j *Journal) Record(ctx context.Context, a Action) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = j.now().UTC().Format(time.RFC3339Nano)
	}
	if a.Outcome == "" {
		a.Outcome = OutcomeOK
	}
	if err := j.db.Insert(ctx, table, a); err != nil {
		return fmt.Errorf("recording %s action: %w", a.Kind, err)
	}
	return nil
}

// Recent returns up to limit actions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Action
	if err := j.db.Select(ctx, &out,
		`SELECT id, kind, finding_id, job_id, target, state, outcome, error_msg, created_at
		 FROM operator_actions ORDER BY created_at DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("loading journal: %w", err)
	}
	return out, nil
}
