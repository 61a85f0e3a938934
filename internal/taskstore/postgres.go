package taskstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// PostgresStore implements Store against a Postgres table, using a single
// UPDATE ... WHERE status = 'pending' RETURNING id statement to express
// markInProgress's at-most-one-claim guarantee as a single round trip
// instead of a separate lock.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to connURL and ensures the backing table
// exists.
func NewPostgresStore(ctx context.Context, connURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("taskstore: postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskstore: postgres ping: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskstore: postgres migrate: %w", err)
	}
	log.Info().Msg("taskstore: postgres store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS loopwork_tasks (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			priority    TEXT NOT NULL DEFAULT 'medium',
			feature     TEXT NOT NULL DEFAULT '',
			depends_on  TEXT[] NOT NULL DEFAULT '{}',
			parent_id   TEXT NOT NULL DEFAULT '',
			last_error  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_loopwork_tasks_status ON loopwork_tasks (status);
	`
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Seed(ctx context.Context, tasks ...models.Task) error {
	for _, t := range tasks {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		status := t.Status
		if status == "" {
			status = models.TaskPending
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO loopwork_tasks (id, title, status, priority, feature, depends_on, parent_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			id, t.Title, status, t.Priority, t.Feature, t.DependsOn, t.ParentID)
		if err != nil {
			return fmt.Errorf("taskstore: seed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindNextTask(ctx context.Context, filter Filter) (*models.Task, error) {
	query := `
		SELECT id, title, status, priority, feature, depends_on, parent_id, last_error, created_at, updated_at
		FROM loopwork_tasks
		WHERE (status = 'pending'
		       OR (status = 'in-progress' AND $3::bigint > 0
		           AND updated_at < NOW() - ($3::bigint * INTERVAL '1 millisecond')))
		  AND ($1 = '' OR feature = $1)
		  AND ($2 = '' OR priority = $2)
		  AND NOT EXISTS (
		      SELECT 1 FROM unnest(depends_on) AS dep
		      JOIN loopwork_tasks d ON d.id = dep
		      WHERE d.status <> 'completed'
		  )
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, created_at
		LIMIT 1`

	row := s.pool.QueryRow(ctx, query, filter.Feature, string(filter.Priority), filter.StuckAfter)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: find next task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, title, status, priority, feature, depends_on, parent_id, last_error, created_at, updated_at
		FROM loopwork_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// MarkInProgress expresses the exclusion primitive as a single
// UPDATE ... WHERE ... RETURNING id statement: the database itself
// arbitrates concurrent claimants. A positive stuckAfterMs additionally
// matches a long-stuck in-progress row, implementing the resume knob.
func (s *PostgresStore) MarkInProgress(ctx context.Context, id string, stuckAfterMs int64) (MarkResult, error) {
	var got string
	err := s.pool.QueryRow(ctx, `
		UPDATE loopwork_tasks SET status = 'in-progress', updated_at = NOW()
		WHERE id = $1
		  AND (status = 'pending'
		       OR (status = 'in-progress' AND $2::bigint > 0
		           AND updated_at < NOW() - ($2::bigint * INTERVAL '1 millisecond')))
		RETURNING id`, id, stuckAfterMs).Scan(&got)
	if err == pgx.ErrNoRows {
		return MarkResult{Success: false, Reason: "not-pending"}, nil
	}
	if err != nil {
		return MarkResult{}, fmt.Errorf("taskstore: mark in progress: %w", err)
	}
	return MarkResult{Success: true}, nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id, _ string) (MarkResult, error) {
	return s.transition(ctx, id, models.TaskCompleted, "")
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, errMsg string) (MarkResult, error) {
	return s.transition(ctx, id, models.TaskFailed, errMsg)
}

func (s *PostgresStore) MarkQuarantined(ctx context.Context, id, reason string) (MarkResult, error) {
	return s.transition(ctx, id, models.TaskQuarantined, reason)
}

func (s *PostgresStore) transition(ctx context.Context, id string, status models.TaskStatus, errMsg string) (MarkResult, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE loopwork_tasks SET status = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
		id, status, errMsg)
	if err != nil {
		return MarkResult{}, fmt.Errorf("taskstore: transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return MarkResult{Success: false, Reason: "not-found"}, nil
	}
	return MarkResult{Success: true}, nil
}

// ResetToPending unconditionally moves id back to pending, regardless of
// its current status. It is the manual counterpart to the automatic
// resume knob FindNextTask/MarkInProgress implement via Filter.StuckAfter.
func (s *PostgresStore) ResetToPending(ctx context.Context, id string) (MarkResult, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE loopwork_tasks SET status = 'pending', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return MarkResult{}, fmt.Errorf("taskstore: reset to pending: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return MarkResult{Success: false, Reason: "not-found"}, nil
	}
	return MarkResult{Success: true}, nil
}

func (s *PostgresStore) ListPendingTasks(ctx context.Context, filter Filter) ([]models.Task, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, status, priority, feature, depends_on, parent_id, last_error, created_at, updated_at
		FROM loopwork_tasks
		WHERE status = 'pending' AND ($1 = '' OR feature = $1) AND ($2 = '' OR priority = $2)
		ORDER BY created_at`, filter.Feature, string(filter.Priority))
	if err != nil {
		return nil, fmt.Errorf("taskstore: list pending: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountPending(ctx context.Context, filter Filter) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM loopwork_tasks
		WHERE status = 'pending' AND ($1 = '' OR feature = $1) AND ($2 = '' OR priority = $2)`,
		filter.Feature, string(filter.Priority)).Scan(&n)
	return n, err
}

func (s *PostgresStore) GetDependencies(ctx context.Context, id string) ([]models.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	out := make([]models.Task, 0, len(t.DependsOn))
	for _, depID := range t.DependsOn {
		dep, err := s.GetTask(ctx, depID)
		if err != nil {
			return nil, err
		}
		if dep != nil {
			out = append(out, *dep)
		}
	}
	return out, nil
}

func (s *PostgresStore) AreDependenciesMet(ctx context.Context, id string) (bool, error) {
	deps, err := s.GetDependencies(ctx, id)
	if err != nil {
		return false, err
	}
	for _, dep := range deps {
		if dep.Status != models.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (s *PostgresStore) Ping(ctx context.Context) PingResult {
	start := time.Now()
	if err := s.pool.Ping(ctx); err != nil {
		return PingResult{OK: false, Error: err.Error(), LatencyMs: time.Since(start).Milliseconds()}
	}
	return PingResult{OK: true, LatencyMs: time.Since(start).Milliseconds()}
}

// row is the subset of pgx.Row/pgx.Rows used by scanTask.
type row interface {
	Scan(dest ...any) error
}

func scanTask(r row) (*models.Task, error) {
	var t models.Task
	var depends []string
	if err := r.Scan(&t.ID, &t.Title, &t.Status, &t.Priority, &t.Feature, &depends, &t.ParentID, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.DependsOn = depends
	return &t, nil
}

var _ Store = (*PostgresStore)(nil)
