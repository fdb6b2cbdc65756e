package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/pkg/logger"
)

// SheetColumns defines the column headers for the publish log sheet
var SheetColumns = []string{
	"Occurrence ID",
	"Job ID",
	"Account",
	"Platform",
	"Scheduled For",
	"Project",
	"Sequence",
	"Status",
	"Attempts",
	"External Post ID",
	"Error",
	"Published At",
	"Updated At",
}

// lastColumn is the sheet column letter of the final header
const lastColumn = "M"

// TrackedItem represents one row of the publish log
type TrackedItem struct {
	OccurrenceID   string
	JobID          string
	AccountID      string
	Platform       string
	ScheduledFor   time.Time
	ProjectID      string
	Sequence       int
	Status         string
	Attempts       int
	ExternalPostID string
	Error          string
	PublishedAt    time.Time
	UpdatedAt      time.Time
}

// SheetsTracker mirrors finished bulk jobs into a Google Sheet, one row per occurrence
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *logger.Logger
	now           func() time.Time

	initOnce sync.Once
	initErr  error
	mu       sync.Mutex
}

// NewSheetsTracker creates a new Google Sheets tracker. It returns nil when tracking is disabled.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("tracker spreadsheet_id is required")
	}

	// Try service account JSON first (for env var injection)
	switch {
	case len(opts) > 0:
	case cfg.ServiceAccountJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	sheetName := cfg.SheetName
	if sheetName == "" {
		sheetName = "Jobs"
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     sheetName,
		log:           log.WithComponent("sheets-tracker"),
		now:           time.Now,
	}, nil
}

// InitializeSheet creates the sheet and headers if they don't exist
func (t *SheetsTracker) InitializeSheet(ctx context.Context) error {
	if err := t.ensureSheetExists(ctx); err != nil {
		return err
	}

	readRange := fmt.Sprintf("%s!A1:%s1", t.sheetName, lastColumn)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet: %w", err)
	}

	if len(resp.Values) == 0 {
		t.log.Info().Msg("Initializing sheet with headers")
		return t.writeHeaders(ctx)
	}

	t.log.Debug().Msg("Sheet already has headers")
	return nil
}

// ensureSheetExists creates the sheet if it doesn't exist
func (t *SheetsTracker) ensureSheetExists(ctx context.Context) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == t.sheetName {
			t.log.Debug().Str("sheet", t.sheetName).Msg("Sheet already exists")
			return nil
		}
	}

	t.log.Info().Str("sheet", t.sheetName).Msg("Creating new sheet")
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: t.sheetName,
					},
				},
			},
		},
	}

	if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	return nil
}

// writeHeaders writes column headers to the first row
func (t *SheetsTracker) writeHeaders(ctx context.Context) error {
	headerRow := make([]interface{}, 0, len(SheetColumns))
	for _, col := range SheetColumns {
		headerRow = append(headerRow, col)
	}

	writeRange := fmt.Sprintf("%s!A1", t.sheetName)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{headerRow},
	}

	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, writeRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	t.log.Info().Msg("Sheet headers initialized")
	return nil
}

// RecordJob writes the final state of every job item. Rows already present for an
// occurrence are overwritten so a retried occurrence keeps a single row.
func (t *SheetsTracker) RecordJob(ctx context.Context, job *models.BulkJob) error {
	t.initOnce.Do(func() { t.initErr = t.InitializeSheet(ctx) })
	if t.initErr != nil {
		return t.initErr
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, err := t.existingRows(ctx)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	var updates []*sheets.ValueRange
	var appends [][]interface{}
	for _, occ := range job.Items {
		item := trackedFromOccurrence(job.ID, occ, now)
		row := item.row()
		if rowNum, ok := existing[occ.ID]; ok {
			updates = append(updates, &sheets.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:%s%d", t.sheetName, rowNum, lastColumn, rowNum),
				Values: [][]interface{}{row},
			})
			continue
		}
		appends = append(appends, row)
	}

	if len(updates) > 0 {
		req := &sheets.BatchUpdateValuesRequest{
			ValueInputOption: "RAW",
			Data:             updates,
		}
		if _, err := t.service.Spreadsheets.Values.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to update rows: %w", err)
		}
	}

	if len(appends) > 0 {
		appendRange := fmt.Sprintf("%s!A:%s", t.sheetName, lastColumn)
		_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, appendRange, &sheets.ValueRange{Values: appends}).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("failed to append rows: %w", err)
		}
	}

	t.log.Info().
		Str("job_id", job.ID).
		Int("updated", len(updates)).
		Int("appended", len(appends)).
		Msg("Recorded job in tracker")
	return nil
}

// existingRows maps occurrence IDs to their 1-indexed row number
func (t *SheetsTracker) existingRows(ctx context.Context) (map[string]int, error) {
	readRange := fmt.Sprintf("%s!A:A", t.sheetName)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read occurrence IDs: %w", err)
	}

	rows := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue // header
		}
		rows[fmt.Sprintf("%v", row[0])] = i + 1
	}
	return rows, nil
}

// GetAll reads every tracked row
func (t *SheetsTracker) GetAll(ctx context.Context) ([]*TrackedItem, error) {
	readRange := fmt.Sprintf("%s!A2:%s", t.sheetName, lastColumn)
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}

	items := make([]*TrackedItem, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		items = append(items, parseRow(row))
	}
	return items, nil
}

func trackedFromOccurrence(jobID string, occ *models.Occurrence, now time.Time) *TrackedItem {
	item := &TrackedItem{
		OccurrenceID:   occ.ID,
		JobID:          jobID,
		AccountID:      occ.AccountID,
		Platform:       string(occ.Platform),
		ScheduledFor:   occ.ScheduledFor,
		ProjectID:      occ.ProjectID,
		Sequence:       occ.Sequence,
		Status:         string(occ.Status),
		Attempts:       occ.Attempt,
		ExternalPostID: occ.ExternalPostID,
		Error:          occ.LastError,
		UpdatedAt:      now,
	}
	if occ.PublishedAt != nil {
		item.PublishedAt = *occ.PublishedAt
	}
	return item
}

func (i *TrackedItem) row() []interface{} {
	return []interface{}{
		i.OccurrenceID,
		i.JobID,
		i.AccountID,
		i.Platform,
		formatTime(i.ScheduledFor),
		i.ProjectID,
		i.Sequence,
		i.Status,
		i.Attempts,
		i.ExternalPostID,
		i.Error,
		formatTime(i.PublishedAt),
		formatTime(i.UpdatedAt),
	}
}

// parseRow converts a sheet row to a TrackedItem
func parseRow(row []interface{}) *TrackedItem {
	item := &TrackedItem{
		OccurrenceID:   safeString(row, 0),
		JobID:          safeString(row, 1),
		AccountID:      safeString(row, 2),
		Platform:       safeString(row, 3),
		ProjectID:      safeString(row, 5),
		Status:         safeString(row, 7),
		ExternalPostID: safeString(row, 9),
		Error:          safeString(row, 10),
	}
	fmt.Sscanf(safeString(row, 6), "%d", &item.Sequence)
	fmt.Sscanf(safeString(row, 8), "%d", &item.Attempts)
	item.ScheduledFor = parseTime(safeString(row, 4))
	item.PublishedAt = parseTime(safeString(row, 11))
	item.UpdatedAt = parseTime(safeString(row, 12))
	return item
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func safeString(row []interface{}, i int) string {
	if i < len(row) && row[i] != nil {
		return fmt.Sprintf("%v", row[i])
	}
	return ""
}
