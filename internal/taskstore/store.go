// Package taskstore defines the pluggable Task Backend interface the
// scheduler borrows tasks from, plus an in-memory and a Postgres-backed
// implementation.
package taskstore

import (
	"context"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// Filter narrows findNextTask/listPendingTasks/countPending. The backend
// alone is responsible for honoring these; the engine makes no ordering
// guarantee beyond what the backend returns.
//
// StuckAfter is the resume knob from the task state machine: a crash
// between markInProgress and a terminal write leaves a task stuck
// in-progress, and a long-stuck in-progress task (updatedAt older than
// now-StuckAfter) is treated as eligible for re-claim, same as pending.
// Zero disables stale re-claim entirely.
type Filter struct {
	Feature    string
	Priority   models.TaskPriority
	StuckAfter int64 // ms
}

// MarkResult is returned by state-transition calls that can race against
// other callers.
type MarkResult struct {
	Success bool
	Reason  string
}

// PingResult reports backend connectivity.
type PingResult struct {
	OK        bool
	LatencyMs int64
	Error     string
}

// Store is the Task Backend collaborator interface. markInProgress is the
// exclusion primitive: it must report success for at most one caller per
// task id, even under concurrent callers. stuckAfterMs, when positive,
// lets MarkInProgress also reclaim a task it finds in-progress but stale
// by that many milliseconds (the same resume-knob threshold FindNextTask
// was given via Filter.StuckAfter) instead of only a pending one.
type Store interface {
	FindNextTask(ctx context.Context, filter Filter) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	MarkInProgress(ctx context.Context, id string, stuckAfterMs int64) (MarkResult, error)
	MarkCompleted(ctx context.Context, id, comment string) (MarkResult, error)
	MarkFailed(ctx context.Context, id, errMsg string) (MarkResult, error)
	MarkQuarantined(ctx context.Context, id, reason string) (MarkResult, error)
	ResetToPending(ctx context.Context, id string) (MarkResult, error)
	ListPendingTasks(ctx context.Context, filter Filter) ([]models.Task, error)
	CountPending(ctx context.Context, filter Filter) (int, error)
	GetDependencies(ctx context.Context, id string) ([]models.Task, error)
	AreDependenciesMet(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) PingResult
	Close() error
}
