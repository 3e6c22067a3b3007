// Package runlog persists a history of reconciliation runs: which audit or
// trace ran, for which company, with what severity, and a summary of what
// it found.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded engine invocation.
type Run struct {
	ID        string          `json:"id"`
	Company   string          `json:"company"`
	Kind      string          `json:"kind"`
	Severity  string          `json:"severity,omitempty"`
	Summary   json.RawMessage `json:"summary,omitempty"`
	Duration  time.Duration   `json:"duration"`
	CreatedAt time.Time       `json:"created_at"`
}

// New builds a Run with a fresh id, marshaling the summary document. A
// summary that fails to marshal is dropped rather than blocking the
// recording.
func New(company, kind, severity string, summary any, duration time.Duration) Run {
	run := Run{
		ID:        uuid.New().String(),
		Company:   company,
		Kind:      kind,
		Severity:  severity,
		Duration:  duration,
		CreatedAt: time.Now().UTC(),
	}
	if summary != nil {
		if data, err := json.Marshal(summary); err == nil {
			run.Summary = data
		}
	}
	return run
}

// Filter selects runs for listing.
type Filter struct {
	Company string `json:"company,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Store is the run history persistence interface.
type Store interface {
	Record(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter Filter) ([]Run, error)
	Migrate(ctx context.Context) error
	Close() error
}
