package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/storage"
)

// Repository implements storage.Repository in process memory. Occurrences are
// additionally indexed by slot key for constant-time conflict lookups.
type Repository struct {
	mu          sync.RWMutex
	patterns    map[string]*models.RecurrencePattern
	occurrences map[string]*models.Occurrence
	slots       map[models.SlotKey]map[string]struct{}
	jobs        map[string]*models.BulkJob
	projects    map[string]*models.Project
}

// New creates an empty in-memory repository
func New() *Repository {
	return &Repository{
		patterns:    make(map[string]*models.RecurrencePattern),
		occurrences: make(map[string]*models.Occurrence),
		slots:       make(map[models.SlotKey]map[string]struct{}),
		jobs:        make(map[string]*models.BulkJob),
		projects:    make(map[string]*models.Project),
	}
}

// Migrate is a no-op for memory
func (r *Repository) Migrate() error { return nil }

// Close is a no-op for memory
func (r *Repository) Close() error { return nil }

// Pattern operations

func (r *Repository) CreatePattern(ctx context.Context, pattern *models.RecurrencePattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	pattern.CreatedAt, pattern.UpdatedAt = now, now
	if pattern.Version == 0 {
		pattern.Version = 1
	}
	cp := *pattern
	r.patterns[pattern.ID] = &cp
	return nil
}

func (r *Repository) GetPattern(ctx context.Context, id string) (*models.RecurrencePattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *Repository) ListPatterns(ctx context.Context, filter storage.PatternFilter) ([]*models.RecurrencePattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.RecurrencePattern
	for _, p := range r.patterns {
		if filter.AccountID != "" && p.AccountID != filter.AccountID {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Repository) UpdatePattern(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVersion(pattern.ID, expectedVersion); err != nil {
		return err
	}
	r.putPattern(pattern, expectedVersion)
	return nil
}

func (r *Repository) SavePatternOccurrences(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int, occurrences []*models.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkVersion(pattern.ID, expectedVersion); err != nil {
		return err
	}
	r.putOccurrences(occurrences)
	r.putPattern(pattern, expectedVersion)
	return nil
}

func (r *Repository) checkVersion(id string, expectedVersion int) error {
	stored, ok := r.patterns[id]
	if !ok {
		return storage.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	return nil
}

func (r *Repository) putPattern(pattern *models.RecurrencePattern, expectedVersion int) {
	pattern.Version = expectedVersion + 1
	pattern.UpdatedAt = time.Now()
	cp := *pattern
	r.patterns[pattern.ID] = &cp
}

func (r *Repository) DeletePattern(ctx context.Context, id string, cancelled []*models.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patterns[id]; !ok {
		return storage.ErrNotFound
	}
	r.putOccurrences(cancelled)
	delete(r.patterns, id)
	return nil
}

// Project operations

func (r *Repository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	cp.Platforms = append(models.StringSlice(nil), p.Platforms...)
	return &cp, nil
}

func (r *Repository) SaveProjectOccurrences(ctx context.Context, project *models.Project, occurrences []*models.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if prev, ok := r.projects[project.ID]; ok {
		project.CreatedAt = prev.CreatedAt
	} else {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	cp := *project
	cp.Platforms = append(models.StringSlice(nil), project.Platforms...)
	r.projects[project.ID] = &cp
	r.putOccurrences(occurrences)
	return nil
}

// Occurrence operations

func (r *Repository) SaveOccurrences(ctx context.Context, occurrences []*models.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putOccurrences(occurrences)
	return nil
}

func (r *Repository) putOccurrences(occurrences []*models.Occurrence) {
	now := time.Now()
	for _, o := range occurrences {
		if prev, ok := r.occurrences[o.ID]; ok {
			r.unindex(prev)
		} else {
			o.CreatedAt = now
		}
		o.UpdatedAt = now
		cp := o.Clone()
		r.occurrences[o.ID] = cp
		r.index(cp)
	}
}

func (r *Repository) index(o *models.Occurrence) {
	if !o.IsLive() {
		return
	}
	k := o.Key()
	if r.slots[k] == nil {
		r.slots[k] = make(map[string]struct{})
	}
	r.slots[k][o.ID] = struct{}{}
}

func (r *Repository) unindex(o *models.Occurrence) {
	k := o.Key()
	delete(r.slots[k], o.ID)
	if len(r.slots[k]) == 0 {
		delete(r.slots, k)
	}
}

func (r *Repository) GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.occurrences[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *Repository) ListOccurrences(ctx context.Context, filter storage.OccurrenceFilter) ([]*models.Occurrence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Occurrence
	for _, o := range r.occurrences {
		if filter.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	sortOccurrences(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *Repository) LoadExistingOccurrences(ctx context.Context, accountID string, from, to time.Time) ([]*models.Occurrence, error) {
	return r.ListOccurrences(ctx, storage.OccurrenceFilter{
		AccountID: accountID,
		Statuses:  storage.LiveStatuses,
		From:      &from,
		To:        &to,
	})
}

func (r *Repository) SlotTaken(ctx context.Context, key models.SlotKey) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots[key]) > 0, nil
}

// Job operations

func (r *Repository) SaveJobResult(ctx context.Context, job *models.BulkJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putOccurrences(job.Items)
	cp := job.Clone()
	cp.Items = nil
	r.jobs[job.ID] = cp
	return nil
}

func (r *Repository) GetJob(ctx context.Context, id string) (*models.BulkJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := j.Clone()
	for _, itemID := range j.ItemIDs {
		if o, ok := r.occurrences[itemID]; ok {
			cp.Items = append(cp.Items, o.Clone())
		}
	}
	return cp, nil
}

func sortOccurrences(out []*models.Occurrence) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TargetDate.Equal(b.TargetDate) {
			return a.TargetDate.Before(b.TargetDate)
		}
		if a.AssignedTime != b.AssignedTime {
			return a.AssignedTime < b.AssignedTime
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.ID < b.ID
	})
}

var _ storage.Repository = (*Repository)(nil)
