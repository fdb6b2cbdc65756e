package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.RecurrencePattern{},
		&models.Occurrence{},
		&models.BulkJob{},
		&models.Project{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Pattern operations

func (r *Repository) CreatePattern(ctx context.Context, pattern *models.RecurrencePattern) error {
	if pattern.Version == 0 {
		pattern.Version = 1
	}
	return r.db.WithContext(ctx).Create(pattern).Error
}

func (r *Repository) GetPattern(ctx context.Context, id string) (*models.RecurrencePattern, error) {
	var pattern models.RecurrencePattern
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pattern).Error; err != nil {
		return nil, notFound(err)
	}
	return &pattern, nil
}

func (r *Repository) ListPatterns(ctx context.Context, filter storage.PatternFilter) ([]*models.RecurrencePattern, error) {
	query := r.db.WithContext(ctx).Model(&models.RecurrencePattern{})

	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var patterns []*models.RecurrencePattern
	if err := query.Order("created_at ASC, id ASC").Find(&patterns).Error; err != nil {
		return nil, err
	}
	return patterns, nil
}

func (r *Repository) UpdatePattern(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int) error {
	return updatePattern(r.db.WithContext(ctx), pattern, expectedVersion)
}

func updatePattern(tx *gorm.DB, pattern *models.RecurrencePattern, expectedVersion int) error {
	pattern.Version = expectedVersion + 1
	res := tx.
		Model(&models.RecurrencePattern{}).
		Where("id = ? AND version = ?", pattern.ID, expectedVersion).
		Select("*").Omit("created_at").
		Updates(pattern)
	if res.Error != nil {
		pattern.Version = expectedVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		pattern.Version = expectedVersion
		var count int64
		if err := tx.Model(&models.RecurrencePattern{}).Where("id = ?", pattern.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrVersionConflict
	}
	return nil
}

func (r *Repository) SavePatternOccurrences(ctx context.Context, pattern *models.RecurrencePattern, expectedVersion int, occurrences []*models.Occurrence) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveOccurrences(tx, occurrences); err != nil {
			return err
		}
		return updatePattern(tx, pattern, expectedVersion)
	})
	if err != nil {
		pattern.Version = expectedVersion
	}
	return err
}

func (r *Repository) DeletePattern(ctx context.Context, id string, cancelled []*models.Occurrence) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.RecurrencePattern{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return saveOccurrences(tx, cancelled)
	})
}

// Project operations

func (r *Repository) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var project models.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, notFound(err)
	}
	return &project, nil
}

func (r *Repository) SaveProjectOccurrences(ctx context.Context, project *models.Project, occurrences []*models.Occurrence) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"account_id", "platforms", "constraints", "updated_at"}),
		}).Create(project).Error
		if err != nil {
			return fmt.Errorf("failed to save project %s: %w", project.ID, err)
		}
		return saveOccurrences(tx, occurrences)
	})
}

// Occurrence operations

func (r *Repository) SaveOccurrences(ctx context.Context, occurrences []*models.Occurrence) error {
	if len(occurrences) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveOccurrences(tx, occurrences)
	})
}

func saveOccurrences(tx *gorm.DB, occurrences []*models.Occurrence) error {
	for _, o := range occurrences {
		// Stored instants share one offset so text comparison orders them
		o.ScheduledFor = o.ScheduledFor.UTC()
		if err := tx.Save(o).Error; err != nil {
			return fmt.Errorf("failed to save occurrence %s: %w", o.ID, err)
		}
	}
	return nil
}

func (r *Repository) GetOccurrence(ctx context.Context, id string) (*models.Occurrence, error) {
	var occ models.Occurrence
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&occ).Error; err != nil {
		return nil, notFound(err)
	}
	return &occ, nil
}

func (r *Repository) ListOccurrences(ctx context.Context, filter storage.OccurrenceFilter) ([]*models.Occurrence, error) {
	query := r.db.WithContext(ctx).Model(&models.Occurrence{})

	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if filter.PatternID != nil {
		query = query.Where("pattern_id = ?", *filter.PatternID)
	}
	if filter.ProjectID != "" {
		query = query.Where("project_id = ?", filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.From != nil {
		query = query.Where("target_date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("target_date <= ?", filter.To.UTC())
	}
	if filter.DueBefore != nil {
		query = query.Where("scheduled_for <= ?", filter.DueBefore.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var occs []*models.Occurrence
	err := query.Order("target_date ASC, assigned_time ASC, platform ASC, id ASC").Find(&occs).Error
	if err != nil {
		return nil, err
	}
	return occs, nil
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
	date, err := time.Parse(time.DateOnly, key.Date)
	if err != nil {
		return false, fmt.Errorf("invalid slot date %q: %w", key.Date, err)
	}
	var count int64
	err = r.db.WithContext(ctx).Model(&models.Occurrence{}).
		Where("account_id = ? AND platform = ? AND target_date = ? AND assigned_time = ?",
			key.AccountID, key.Platform, date, key.Time).
		Where("status <> ?", models.OccurrenceStatusCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Job operations

func (r *Repository) SaveJobResult(ctx context.Context, job *models.BulkJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveOccurrences(tx, job.Items); err != nil {
			return err
		}
		return tx.Save(job).Error
	})
}

func (r *Repository) GetJob(ctx context.Context, id string) (*models.BulkJob, error) {
	var job models.BulkJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return nil, notFound(err)
	}
	if len(job.ItemIDs) == 0 {
		return &job, nil
	}

	var items []*models.Occurrence
	if err := r.db.WithContext(ctx).Where("id IN ?", []string(job.ItemIDs)).Find(&items).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Occurrence, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	for _, itemID := range job.ItemIDs {
		if it, ok := byID[itemID]; ok {
			job.Items = append(job.Items, it)
		}
	}
	return &job, nil
}

var _ storage.Repository = (*Repository)(nil)
