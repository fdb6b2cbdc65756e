package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/social-scheduler/internal/agent/publisher"
	"github.com/social-scheduler/internal/config"
	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/pkg/logger"
)

var _ publisher.ResultSink = (*SheetsTracker)(nil)

// fakeSheets is a minimal in-memory Sheets API for a single spreadsheet
type fakeSheets struct {
	mu        sync.Mutex
	hasSheet  bool
	rows      [][]interface{}
	addSheets int
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sid")
	var body struct {
		Values [][]interface{} `json:"values"`
		Data   []struct {
			Range  string          `json:"range"`
			Values [][]interface{} `json:"values"`
		} `json:"data"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	var out interface{} = map[string]interface{}{}
	switch {
	case path == "" && r.Method == http.MethodGet:
		var sheets []interface{}
		if f.hasSheet {
			sheets = append(sheets, map[string]interface{}{"properties": map[string]interface{}{"title": "Jobs"}})
		}
		out = map[string]interface{}{"spreadsheetId": "sid", "sheets": sheets}
	case path == ":batchUpdate":
		f.hasSheet = true
		f.addSheets++
	case path == "/values:batchUpdate":
		for _, d := range body.Data {
			var row int
			_, err := fmt.Sscanf(d.Range[strings.Index(d.Range, "!A")+2:], "%d", &row)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.rows[row-1] = d.Values[0]
		}
	case strings.HasSuffix(path, ":append"):
		f.rows = append(f.rows, body.Values...)
	case r.Method == http.MethodPut:
		if len(f.rows) == 0 {
			f.rows = append(f.rows, nil)
		}
		f.rows[0] = body.Values[0]
	case strings.HasSuffix(path, "!A1:M1"):
		if len(f.rows) > 0 {
			out = map[string]interface{}{"values": f.rows[:1]}
		}
	case strings.HasSuffix(path, "!A:A"):
		var col [][]interface{}
		for _, row := range f.rows {
			col = append(col, row[:1])
		}
		out = map[string]interface{}{"values": col}
	case strings.HasSuffix(path, "!A2:M"):
		if len(f.rows) > 1 {
			out = map[string]interface{}{"values": f.rows[1:]}
		}
	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func newTestTracker(t *testing.T, fake *fakeSheets) *SheetsTracker {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tr, err := NewSheetsTracker(context.Background(), config.TrackerConfig{
		Enabled:       true,
		SpreadsheetID: "sid",
		SheetName:     "Jobs",
	}, logger.Nop(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	tr.now = func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) }
	return tr
}

func occurrence(id string, status models.OccurrenceStatus) *models.Occurrence {
	return &models.Occurrence{
		ID:           id,
		AccountID:    "acct",
		Platform:     models.PlatformLinkedIn,
		ScheduledFor: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		Sequence:     1,
		Status:       status,
		Attempt:      1,
	}
}

func TestNewSheetsTrackerDisabled(t *testing.T) {
	tr, err := NewSheetsTracker(context.Background(), config.TrackerConfig{}, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, tr)
}

func TestNewSheetsTrackerRequiresCredentials(t *testing.T) {
	_, err := NewSheetsTracker(context.Background(), config.TrackerConfig{Enabled: true, SpreadsheetID: "sid"}, logger.Nop())
	assert.Error(t, err)
}

func TestRecordJobAppendsAndUpdatesRows(t *testing.T) {
	fake := &fakeSheets{}
	tr := newTestTracker(t, fake)
	ctx := context.Background()

	failed := occurrence("occ-2", models.OccurrenceStatusCancelled)
	failed.Attempt = 3
	failed.LastError = "publish failure: 503"
	require.NoError(t, tr.RecordJob(ctx, &models.BulkJob{
		ID:    "job-1",
		Items: []*models.Occurrence{occurrence("occ-1", models.OccurrenceStatusPublished), failed},
	}))

	require.Len(t, fake.rows, 3)
	assert.Equal(t, 1, fake.addSheets)
	assert.Equal(t, "Occurrence ID", fake.rows[0][0])

	// occurrence 2 is retried in a later job
	published := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	retried := occurrence("occ-2", models.OccurrenceStatusPublished)
	retried.ExternalPostID = "urn:li:share:9"
	retried.PublishedAt = &published
	require.NoError(t, tr.RecordJob(ctx, &models.BulkJob{
		ID:    "job-2",
		Items: []*models.Occurrence{retried, occurrence("occ-3", models.OccurrenceStatusPublished)},
	}))

	items, err := tr.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "occ-1", items[0].OccurrenceID)
	assert.Equal(t, "occ-2", items[1].OccurrenceID)
	assert.Equal(t, "job-2", items[1].JobID)
	assert.Equal(t, "published", items[1].Status)
	assert.Equal(t, "urn:li:share:9", items[1].ExternalPostID)
	assert.True(t, published.Equal(items[1].PublishedAt))
	assert.Equal(t, "", items[1].Error)
	assert.Equal(t, "occ-3", items[2].OccurrenceID)
	assert.Equal(t, 1, items[2].Sequence)
}

func TestParseRowShortRow(t *testing.T) {
	item := parseRow([]interface{}{"occ-1", "job-1"})
	assert.Equal(t, "occ-1", item.OccurrenceID)
	assert.Equal(t, "job-1", item.JobID)
	assert.True(t, item.ScheduledFor.IsZero())
}
