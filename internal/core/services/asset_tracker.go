package services

import (
	"context"
	"sort"
	"sync"

	"github.com/manthysbr/aule-weather/internal/core/domain"
)

type trackedAsset struct {
	job    *domain.AssetJob
	cancel context.CancelFunc
}

// AssetTracker holds snapshots of jobs whose poll loop has not finished.
// Entries are dropped once the resolution is delivered or the poll is cancelled.
type AssetTracker struct {
	mu   sync.RWMutex
	jobs map[domain.AssetJobID]trackedAsset
}

func NewAssetTracker() *AssetTracker {
	return &AssetTracker{jobs: make(map[domain.AssetJobID]trackedAsset)}
}

// Track starts tracking a job. cancel stops its poll loop.
func (t *AssetTracker) Track(job *domain.AssetJob, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = trackedAsset{job: job.Clone(), cancel: cancel}
}

// Update refreshes the snapshot of a tracked job. Untracked jobs are ignored.
func (t *AssetTracker) Update(job *domain.AssetJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.jobs[job.ID]
	if !ok {
		return
	}
	entry.job = job.Clone()
	t.jobs[job.ID] = entry
}

func (t *AssetTracker) Get(id domain.AssetJobID) (*domain.AssetJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entry, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	return entry.job.Clone(), true
}

// Cancel stops the job's poll loop and forgets it.
func (t *AssetTracker) Cancel(id domain.AssetJobID) bool {
	t.mu.Lock()
	entry, ok := t.jobs[id]
	delete(t.jobs, id)
	t.mu.Unlock()
	if ok && entry.cancel != nil {
		entry.cancel()
	}
	return ok
}

func (t *AssetTracker) Forget(id domain.AssetJobID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.jobs[id]; ok {
		if entry.cancel != nil {
			entry.cancel()
		}
		delete(t.jobs, id)
	}
}

// List returns snapshots ordered by creation time.
func (t *AssetTracker) List() []domain.AssetJob {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.AssetJob, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *AssetTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}
