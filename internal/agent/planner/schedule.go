package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
	"github.com/social-scheduler/internal/storage"
)

// ExpandAndSchedule generates the occurrences of an active pattern from today through
// today+horizonDays-1, skipping days an earlier run already covered.
func (p *Planner) ExpandAndSchedule(ctx context.Context, patternID string, horizonDays int) (*ScheduleResult, error) {
	pattern, err := p.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if !pattern.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPatternPaused, patternID)
	}

	horizonDays = p.horizon(horizonDays)
	today := p.today(pattern.Constraints.Location())
	from := today
	if pattern.LastDate != nil {
		from = later(from, recurrence.AddDays(recurrence.Day(*pattern.LastDate), 1))
	}
	to := recurrence.AddDays(today, horizonDays-1)
	if from.After(to) || pattern.Exhausted(from) {
		return &ScheduleResult{}, nil
	}
	return p.schedulePattern(ctx, pattern, from, to, horizonDays, nil)
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// schedulePattern expands pattern over [from, to] and commits accepted drafts, the cancelled
// occurrences and the pattern's bookkeeping in one repository call. An empty window only
// commits the cancellations.
func (p *Planner) schedulePattern(
	ctx context.Context,
	pattern *models.RecurrencePattern,
	from, to time.Time,
	horizonDays int,
	cancelled []*models.Occurrence,
) (*ScheduleResult, error) {
	log := p.log.WithPatternID(pattern.ID)

	var dates []time.Time
	if !from.After(to) {
		var err error
		dates, err = recurrence.Collect(pattern, from, to, recurrence.Options{AlreadyEmitted: pattern.GeneratedCount})
		if err != nil {
			return nil, err
		}
	}

	base := pattern.GeneratedCount
	res, err := p.plan(ctx, batch{
		accountID:   pattern.AccountID,
		platforms:   pattern.PlatformList(),
		constraints: pattern.Constraints,
		dates:       dates,
		horizonDays: horizonDays,
		stamp: func(o *models.Occurrence, candidate int) {
			id := pattern.ID
			o.PatternID = &id
			o.Sequence = base + candidate + 1
		},
		replaced: cancelled,
	})
	if err != nil {
		return nil, err
	}
	if err := p.guard(ctx, res, cancelled); err != nil {
		return nil, err
	}

	next := *pattern
	next.GeneratedCount += len(dates)
	if !from.After(to) && (next.LastDate == nil || to.After(*next.LastDate)) {
		last := to
		next.LastDate = &last
	}
	writes := make([]*models.Occurrence, 0, len(cancelled)+len(res.Scheduled))
	writes = append(writes, cancelled...)
	writes = append(writes, res.Scheduled...)
	if err := p.repo.SavePatternOccurrences(ctx, &next, pattern.Version, writes); err != nil {
		return nil, fmt.Errorf("failed to save occurrences: %w", err)
	}
	*pattern = next
	p.logRejected(res)

	log.Info().
		Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("candidates", len(dates)).
		Int("scheduled", len(res.Scheduled)).
		Int("rejected", len(res.Rejected)).
		Int("cancelled", len(cancelled)).
		Msg("Pattern expanded")
	return res, nil
}

// BulkItem is one piece of content to place in a bulk schedule
type BulkItem struct {
	PayloadRef string
}

// BulkRequest spreads one-off items one per day across platforms
type BulkRequest struct {
	AccountID   string
	ProjectID   string // generated when empty
	Platforms   []models.Platform
	StartDate   time.Time // defaults to today
	Items       []BulkItem
	Constraints *models.Constraints // defaults to the stored project set, then the planner defaults
}

// ScheduleBulk places bulk items on consecutive days starting at the request's start date.
// The constraint set is stored with the project so later extensions keep it.
func (p *Planner) ScheduleBulk(ctx context.Context, req BulkRequest) (*ScheduleResult, error) {
	if req.AccountID == "" {
		return nil, fmt.Errorf("%w: account is required", ErrInvalidRequest)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidRequest)
	}

	project := &models.Project{
		ID:          req.ProjectID,
		AccountID:   req.AccountID,
		Platforms:   platformNames(req.Platforms),
		Constraints: p.defaults,
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	} else if stored, err := p.repo.GetProject(ctx, project.ID); err == nil {
		project.Constraints = stored.Constraints
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if req.Constraints != nil {
		project.Constraints = *req.Constraints
	}
	if err := p.checkPlatforms(req.Platforms, project.Constraints); err != nil {
		return nil, err
	}

	start := recurrence.Day(req.StartDate)
	if req.StartDate.IsZero() {
		start = p.today(project.Constraints.Location())
	}

	base, err := p.projectSequence(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	refs := make([]string, len(req.Items))
	for i, it := range req.Items {
		refs[i] = it.PayloadRef
	}
	return p.scheduleProject(ctx, project, start, refs, base)
}

func platformNames(platforms []models.Platform) models.StringSlice {
	out := make(models.StringSlice, len(platforms))
	for i, pl := range platforms {
		out[i] = string(pl)
	}
	return out
}

func (p *Planner) scheduleProject(ctx context.Context, project *models.Project, start time.Time, refs []string, base int) (*ScheduleResult, error) {
	dates := make([]time.Time, len(refs))
	for i := range refs {
		dates[i] = recurrence.AddDays(start, i)
	}

	res, err := p.plan(ctx, batch{
		accountID:   project.AccountID,
		platforms:   project.PlatformList(),
		constraints: project.Constraints,
		dates:       dates,
		horizonDays: len(dates),
		stamp: func(o *models.Occurrence, candidate int) {
			o.ProjectID = project.ID
			o.Sequence = base + candidate + 1
			o.PayloadRef = refs[candidate]
		},
	})
	if err != nil {
		return nil, err
	}
	if err := p.guard(ctx, res, nil); err != nil {
		return nil, err
	}
	if err := p.repo.SaveProjectOccurrences(ctx, project, res.Scheduled); err != nil {
		return nil, fmt.Errorf("failed to save occurrences: %w", err)
	}
	p.logRejected(res)

	p.log.Info().
		Str("project_id", project.ID).
		Int("items", len(refs)).
		Int("scheduled", len(res.Scheduled)).
		Int("rejected", len(res.Rejected)).
		Msg("Project scheduled")
	return res, nil
}

func (p *Planner) projectSequence(ctx context.Context, projectID string) (int, error) {
	existing, err := p.repo.ListOccurrences(ctx, storage.OccurrenceFilter{ProjectID: projectID})
	if err != nil {
		return 0, err
	}
	seq := 0
	for _, o := range existing {
		seq = max(seq, o.Sequence)
	}
	return seq, nil
}

// ExtendRequest grows an existing schedule. Exactly one of PatternID and ProjectID is set.
type ExtendRequest struct {
	PatternID      string
	ProjectID      string
	AdditionalDays int
	// StartDate is required when the target has no occurrences yet.
	StartDate *time.Time
	// PayloadRefs supply content for new project days; missing entries reuse the latest ref.
	PayloadRefs []string
	// Constraints replace the stored constraints of a project from now on. Patterns ignore it.
	Constraints *models.Constraints
}

// Extend schedules AdditionalDays more days after the latest day the target already covers
func (p *Planner) Extend(ctx context.Context, req ExtendRequest) (*ScheduleResult, error) {
	if req.AdditionalDays < 1 {
		return nil, fmt.Errorf("%w: additional days must be >= 1", ErrInvalidRequest)
	}
	if (req.PatternID == "") == (req.ProjectID == "") {
		return nil, fmt.Errorf("%w: exactly one of pattern and project is required", ErrInvalidRequest)
	}

	filter := storage.OccurrenceFilter{Statuses: storage.LiveStatuses}
	if req.PatternID != "" {
		filter.PatternID = &req.PatternID
	} else {
		filter.ProjectID = req.ProjectID
	}
	existing, err := p.repo.ListOccurrences(ctx, filter)
	if err != nil {
		return nil, err
	}

	var marker *models.Occurrence
	for _, o := range existing {
		if marker == nil || o.TargetDate.After(marker.TargetDate) ||
			(o.TargetDate.Equal(marker.TargetDate) && o.Sequence > marker.Sequence) {
			marker = o
		}
	}

	if req.PatternID != "" {
		return p.extendPattern(ctx, req, marker)
	}
	return p.extendProject(ctx, req, existing, marker)
}

// extendStart returns the first day after covered, moved forward to the requested start date
func extendStart(covered, requested *time.Time) (time.Time, bool) {
	var from time.Time
	ok := false
	if covered != nil {
		from, ok = recurrence.AddDays(recurrence.Day(*covered), 1), true
	}
	if requested != nil {
		from, ok = later(from, recurrence.Day(*requested)), true
	}
	return from, ok
}

func (p *Planner) extendPattern(ctx context.Context, req ExtendRequest, marker *models.Occurrence) (*ScheduleResult, error) {
	pattern, err := p.repo.GetPattern(ctx, req.PatternID)
	if err != nil {
		return nil, err
	}
	if !pattern.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPatternPaused, req.PatternID)
	}

	// Days up to LastDate were already expanded, even when none of their drafts survived.
	covered := pattern.LastDate
	if marker != nil && (covered == nil || marker.TargetDate.After(*covered)) {
		covered = &marker.TargetDate
	}
	from, ok := extendStart(covered, req.StartDate)
	if !ok {
		return nil, ErrNothingToExtend
	}
	to := recurrence.AddDays(from, req.AdditionalDays-1)
	if pattern.Exhausted(from) {
		return &ScheduleResult{}, nil
	}
	return p.schedulePattern(ctx, pattern, from, to, req.AdditionalDays, nil)
}

func (p *Planner) extendProject(ctx context.Context, req ExtendRequest, existing []*models.Occurrence, marker *models.Occurrence) (*ScheduleResult, error) {
	project, err := p.repo.GetProject(ctx, req.ProjectID)
	switch {
	case errors.Is(err, storage.ErrNotFound) && marker != nil:
		project = projectFromOccurrences(req.ProjectID, existing, marker, p.defaults)
	case errors.Is(err, storage.ErrNotFound):
		// A project is defined by its record or its occurrences; without either there is no
		// account or platform set.
		return nil, ErrNothingToExtend
	case err != nil:
		return nil, err
	}
	if req.Constraints != nil {
		project.Constraints = *req.Constraints
		if err := p.checkPlatforms(project.PlatformList(), project.Constraints); err != nil {
			return nil, err
		}
	}

	var covered *time.Time
	if marker != nil {
		covered = &marker.TargetDate
	}
	from, ok := extendStart(covered, req.StartDate)
	if !ok {
		return nil, ErrNothingToExtend
	}

	seq := 0
	for _, o := range existing {
		seq = max(seq, o.Sequence)
	}
	refs := make([]string, req.AdditionalDays)
	for i := range refs {
		switch {
		case i < len(req.PayloadRefs):
			refs[i] = req.PayloadRefs[i]
		case marker != nil:
			refs[i] = marker.PayloadRef
		}
	}
	return p.scheduleProject(ctx, project, from, refs, seq)
}

// projectFromOccurrences rebuilds the record of a project stored before projects had one
func projectFromOccurrences(id string, existing []*models.Occurrence, marker *models.Occurrence, c models.Constraints) *models.Project {
	project := &models.Project{ID: id, AccountID: marker.AccountID, Constraints: c}
	seen := make(map[models.Platform]bool)
	for _, o := range existing {
		if !seen[o.Platform] {
			seen[o.Platform] = true
			project.Platforms = append(project.Platforms, string(o.Platform))
		}
	}
	return project
}

// Regenerate cancels the future drafts of a pattern and expands it again over the horizon.
// Occurrences that are queued, being published, or already published are kept. The
// cancellations and the new drafts are committed together.
func (p *Planner) Regenerate(ctx context.Context, patternID string, horizonDays int) (*ScheduleResult, error) {
	pattern, err := p.repo.GetPattern(ctx, patternID)
	if err != nil {
		return nil, err
	}
	if !pattern.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrPatternPaused, patternID)
	}

	horizonDays = p.horizon(horizonDays)
	today := p.today(pattern.Constraints.Location())
	future, err := p.repo.ListOccurrences(ctx, storage.OccurrenceFilter{
		PatternID: &pattern.ID,
		Statuses:  storage.LiveStatuses,
		From:      &today,
	})
	if err != nil {
		return nil, err
	}

	var cancelled []*models.Occurrence
	dropped := make(map[int]bool)
	keptThrough := recurrence.AddDays(today, -1)
	for _, o := range future {
		if o.Status != models.OccurrenceStatusDraft {
			keptThrough = later(keptThrough, o.TargetDate)
			continue
		}
		o.Status = models.OccurrenceStatusCancelled
		o.LastError = "regenerated"
		cancelled = append(cancelled, o)
		dropped[o.Sequence] = true
	}
	// A candidate survives if any of its platforms is kept.
	for _, o := range future {
		if o.Status != models.OccurrenceStatusCancelled {
			delete(dropped, o.Sequence)
		}
	}

	pattern.GeneratedCount = max(pattern.GeneratedCount-len(dropped), 0)
	pattern.LastDate = &keptThrough
	from := recurrence.AddDays(keptThrough, 1)
	to := recurrence.AddDays(today, horizonDays-1)
	if pattern.Exhausted(from) {
		to = keptThrough
	}
	return p.schedulePattern(ctx, pattern, from, to, horizonDays, cancelled)
}
