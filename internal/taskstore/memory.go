package taskstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nadimtuhin/loopwork/pkg/models"
)

// MemoryStore holds tasks in an RWMutex-guarded map, with an optional
// debounced JSON-snapshot-to-disk persistence layer.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	order []string // insertion order, for deterministic FindNextTask scans

	snapshotPath string
	saveMu       sync.Mutex
	saveCh       chan struct{}
	doneCh       chan struct{}
}

type snapshot struct {
	Tasks map[string]*models.Task `json:"tasks"`
	Order []string                `json:"order"`
}

// NewMemoryStore constructs a MemoryStore. If the LOOPWORK_DATA_DIR
// environment variable is set (or $HOME/.loopwork otherwise resolves), a
// data.json snapshot is loaded at startup and rewritten, debounced, on
// every mutation.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		tasks:  make(map[string]*models.Task),
		saveCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}

	dataDir := os.Getenv("LOOPWORK_DATA_DIR")
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataDir = filepath.Join(home, ".loopwork")
		}
	}
	if dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("taskstore: cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	return m
}

func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
	}
}

func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(200 * time.Millisecond)
			m.saveSnapshot()
		}
	}
}

func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{Tasks: m.tasks, Order: m.order}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		log.Error().Err(err).Msg("taskstore: failed to marshal snapshot")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Msg("taskstore: failed to write snapshot tmp")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Error().Err(err).Msg("taskstore: failed to rename snapshot")
	}
}

func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("taskstore: failed to read snapshot")
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("taskstore: failed to parse snapshot")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Tasks != nil {
		m.tasks = snap.Tasks
	}
	m.order = snap.Order
}

// Close stops the background save goroutine, flushing any pending write.
func (m *MemoryStore) Close() error {
	if m.snapshotPath != "" {
		close(m.doneCh)
		m.saveSnapshot()
	}
	return nil
}

// Seed inserts tasks directly, bypassing the pending/in-progress lifecycle.
// Intended for tests and for cold-starting a queue.
func (m *MemoryStore) Seed(tasks ...models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range tasks {
		tc := t
		if tc.Status == "" {
			tc.Status = models.TaskPending
		}
		if tc.CreatedAt.IsZero() {
			tc.CreatedAt = now
		}
		if tc.UpdatedAt.IsZero() {
			tc.UpdatedAt = now
		}
		if _, exists := m.tasks[tc.ID]; !exists {
			m.order = append(m.order, tc.ID)
		}
		m.tasks[tc.ID] = &tc
	}
	m.requestSave()
}

func (m *MemoryStore) FindNextTask(_ context.Context, filter Filter) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*models.Task, 0)
	for _, id := range m.order {
		t := m.tasks[id]
		if t == nil {
			continue
		}
		if isClaimable(t, filter.StuckAfter) && matchesFilter(t, filter) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return priorityRank(candidates[i].Priority) < priorityRank(candidates[j].Priority)
	})
	for _, c := range candidates {
		met, _ := m.areDependenciesMetLocked(c.ID)
		if met {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

// isClaimable reports whether t is a fresh pending task, or an in-progress
// task that has been stuck for at least stuckAfterMs (the resume knob).
func isClaimable(t *models.Task, stuckAfterMs int64) bool {
	if t.Status == models.TaskPending {
		return true
	}
	if t.Status == models.TaskInProgress && stuckAfterMs > 0 {
		return time.Since(t.UpdatedAt) >= time.Duration(stuckAfterMs)*time.Millisecond
	}
	return false
}

func matchesFilter(t *models.Task, filter Filter) bool {
	if filter.Feature != "" && t.Feature != filter.Feature {
		return false
	}
	if filter.Priority != "" && t.Priority != filter.Priority {
		return false
	}
	return true
}

func priorityRank(p models.TaskPriority) int {
	switch p {
	case models.PriorityHigh:
		return 0
	case models.PriorityMedium:
		return 1
	case models.PriorityLow:
		return 2
	default:
		return 1
	}
}

func (m *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// MarkInProgress is the exclusion primitive: a single compare-and-set under
// the write lock, so at most one caller observes success per task id. A
// positive stuckAfterMs additionally lets a long-stuck in-progress task be
// reclaimed the same way a pending one is, implementing the resume knob.
func (m *MemoryStore) MarkInProgress(_ context.Context, id string, stuckAfterMs int64) (MarkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return MarkResult{Success: false, Reason: "not-found"}, nil
	}
	if !isClaimable(t, stuckAfterMs) {
		return MarkResult{Success: false, Reason: "not-pending"}, nil
	}
	t.Status = models.TaskInProgress
	t.UpdatedAt = time.Now()
	m.requestSave()
	return MarkResult{Success: true}, nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, id, _ string) (MarkResult, error) {
	return m.transition(id, models.TaskCompleted, "")
}

func (m *MemoryStore) MarkFailed(_ context.Context, id, errMsg string) (MarkResult, error) {
	return m.transition(id, models.TaskFailed, errMsg)
}

func (m *MemoryStore) MarkQuarantined(_ context.Context, id, reason string) (MarkResult, error) {
	return m.transition(id, models.TaskQuarantined, reason)
}

func (m *MemoryStore) transition(id string, status models.TaskStatus, errMsg string) (MarkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return MarkResult{Success: false, Reason: "not-found"}, nil
	}
	t.Status = status
	t.LastError = errMsg
	t.UpdatedAt = time.Now()
	m.requestSave()
	return MarkResult{Success: true}, nil
}

// ResetToPending unconditionally moves id back to pending, regardless of
// its current status. It is the manual counterpart to the automatic
// resume knob FindNextTask/MarkInProgress implement via Filter.StuckAfter.
func (m *MemoryStore) ResetToPending(_ context.Context, id string) (MarkResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return MarkResult{Success: false, Reason: "not-found"}, nil
	}
	t.Status = models.TaskPending
	t.UpdatedAt = time.Now()
	m.requestSave()
	return MarkResult{Success: true}, nil
}

func (m *MemoryStore) ListPendingTasks(_ context.Context, filter Filter) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Task, 0)
	for _, id := range m.order {
		t := m.tasks[id]
		if t != nil && t.Status == models.TaskPending && matchesFilter(t, filter) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountPending(ctx context.Context, filter Filter) (int, error) {
	tasks, err := m.ListPendingTasks(ctx, filter)
	return len(tasks), err
}

func (m *MemoryStore) GetDependencies(_ context.Context, id string) ([]models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	out := make([]models.Task, 0, len(t.DependsOn))
	for _, depID := range t.DependsOn {
		if dep, ok := m.tasks[depID]; ok {
			out = append(out, *dep)
		}
	}
	return out, nil
}

func (m *MemoryStore) AreDependenciesMet(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.areDependenciesMetLocked(id)
}

func (m *MemoryStore) areDependenciesMetLocked(id string) (bool, error) {
	t, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	for _, depID := range t.DependsOn {
		dep, ok := m.tasks[depID]
		if !ok || dep.Status != models.TaskCompleted {
			return false, nil
		}
	}
	return true, nil
}

func (m *MemoryStore) Ping(_ context.Context) PingResult {
	return PingResult{OK: true}
}

var _ Store = (*MemoryStore)(nil)
