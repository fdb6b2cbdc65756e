package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/social-scheduler/internal/models"
	"github.com/social-scheduler/internal/recurrence"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tod(s string) models.TimeOfDay {
	t, err := models.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func testTable() Table {
	return Table{
		models.PlatformLinkedIn: {{At: tod("08:00"), Rank: 1}, {At: tod("12:00"), Rank: 2}, {At: tod("17:00"), Rank: 3}},
		models.PlatformTwitter:  {{At: tod("15:00"), Rank: 2}, {At: tod("09:00"), Rank: 1}},
	}
}

func optimized() models.Constraints {
	return models.Constraints{OptimizeTimings: true}
}

func TestTableRankedTieBreaksOnEarliest(t *testing.T) {
	table := Table{models.PlatformFacebook: {{At: tod("17:00")}, {At: tod("09:00")}, {At: tod("13:00"), Rank: 1}}}

	got, ok := table.Ranked(models.PlatformFacebook)
	require.True(t, ok)
	assert.Equal(t, []models.TimeOfDay{tod("09:00"), tod("17:00"), tod("13:00")}, got)

	_, ok = table.Ranked(models.PlatformTikTok)
	assert.False(t, ok)
}

func TestCandidatesWithoutOptimization(t *testing.T) {
	c := models.Constraints{DefaultTime: tod("22:00"), MinSpacing: time.Hour}
	got, err := testTable().Candidates(models.PlatformTikTok, c)
	require.NoError(t, err)
	assert.Equal(t, []models.TimeOfDay{tod("22:00"), tod("23:00")}, got)
}

func TestAssignPicksTopRankedTime(t *testing.T) {
	a := NewAssigner(testTable())

	drafts, err := a.Assign(AssignRequest{
		AccountID:   "acct",
		Dates:       []time.Time{day(2026, 1, 5), day(2026, 1, 6)},
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: optimized(),
	})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	assert.Equal(t, models.PlatformLinkedIn, drafts[0].Platform)
	assert.Equal(t, tod("08:00"), drafts[0].AssignedTime)
	assert.Equal(t, models.PlatformTwitter, drafts[1].Platform)
	assert.Equal(t, tod("09:00"), drafts[1].AssignedTime)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), drafts[1].ScheduledFor)
	for _, d := range drafts {
		assert.Equal(t, models.OccurrenceStatusDraft, d.Status)
		assert.Equal(t, "acct", d.AccountID)
	}
}

func TestAssignIsDeterministic(t *testing.T) {
	req := AssignRequest{
		AccountID:   "acct",
		Dates:       []time.Time{day(2026, 1, 2), day(2026, 1, 3), day(2026, 1, 4), day(2026, 1, 5)},
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: models.Constraints{OptimizeTimings: true, SkipWeekends: true, MaxPerDay: 4},
	}

	first, err := NewAssigner(testTable()).Assign(req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := NewAssigner(testTable()).Assign(req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssignSkipWeekendsMovesPlatformsTogether(t *testing.T) {
	a := NewAssigner(testTable())
	c := optimized()
	c.SkipWeekends = true

	// 2026-01-10 is a Saturday, 2026-01-11 a Sunday.
	drafts, err := a.Assign(AssignRequest{
		AccountID:   "acct",
		Dates:       []time.Time{day(2026, 1, 9), day(2026, 1, 10), day(2026, 1, 11)},
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: c,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 6)

	for _, d := range drafts {
		assert.False(t, recurrence.IsWeekend(d.TargetDate), "draft on %s", d.DateKey())
	}
	assert.Equal(t, "2026-01-12", drafts[2].DateKey())
	assert.Equal(t, drafts[2].TargetDate, drafts[3].TargetDate)
	assert.Equal(t, "2026-01-12", drafts[4].DateKey())
}

func TestAssignMaxPerDaySpillsOver(t *testing.T) {
	a := NewAssigner(testTable())
	c := optimized()
	c.MaxPerDay = 2

	committed := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 5), AssignedTime: tod("17:00")},
		{AccountID: "other", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 6), AssignedTime: tod("17:00")},
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 6), Status: models.OccurrenceStatusCancelled},
	}

	drafts, err := a.Assign(AssignRequest{
		AccountID:   "acct",
		Dates:       []time.Time{day(2026, 1, 5), day(2026, 1, 6)},
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: c,
		Committed:   committed,
	})
	require.NoError(t, err)
	require.Len(t, drafts, 4)

	assert.Equal(t, "2026-01-06", drafts[0].DateKey())
	assert.Equal(t, "2026-01-06", drafts[1].DateKey())
	assert.Equal(t, "2026-01-07", drafts[2].DateKey())
	assert.Equal(t, "2026-01-07", drafts[3].DateKey())
}

func TestAssignErrors(t *testing.T) {
	a := NewAssigner(testTable())

	_, err := a.Assign(AssignRequest{AccountID: "acct", Dates: []time.Time{day(2026, 1, 5)}, Constraints: optimized()})
	require.ErrorIs(t, err, ErrNoPlatformConfigured)

	_, err = a.Assign(AssignRequest{
		AccountID: "acct", Dates: []time.Time{day(2026, 1, 5)},
		Platforms: []models.Platform{models.PlatformYouTube}, Constraints: optimized(),
	})
	require.ErrorIs(t, err, ErrNoPlatformConfigured)

	c := optimized()
	c.MaxPerDay = 1
	c.LookaheadDays = 2
	committed := []*models.Occurrence{
		{AccountID: "acct", TargetDate: day(2026, 1, 5)},
		{AccountID: "acct", TargetDate: day(2026, 1, 6)},
		{AccountID: "acct", TargetDate: day(2026, 1, 7)},
	}
	_, err = a.Assign(AssignRequest{
		AccountID: "acct", Dates: []time.Time{day(2026, 1, 5)},
		Platforms: []models.Platform{models.PlatformLinkedIn}, Constraints: c, Committed: committed,
	})
	require.ErrorIs(t, err, ErrExhaustedHorizon)

	_, err = a.Assign(AssignRequest{
		AccountID: "acct", Dates: []time.Time{day(2026, 1, 5)},
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: c,
	})
	require.ErrorIs(t, err, ErrInvalidConstraints)
}

func TestResolveMovesToNextRankedTime(t *testing.T) {
	r := NewResolver(testTable())
	existing := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 5), AssignedTime: tod("08:00")},
	}
	drafts := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 5), AssignedTime: tod("08:00")},
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 5), AssignedTime: tod("08:00")},
	}

	res := r.Resolve(ResolveRequest{Drafts: drafts, Existing: existing, Constraints: optimized()})
	require.Empty(t, res.Rejected)
	require.Len(t, res.Accepted, 2)
	assert.Equal(t, tod("12:00"), res.Accepted[0].AssignedTime)
	assert.Equal(t, tod("17:00"), res.Accepted[1].AssignedTime)
	assert.Equal(t, time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), res.Accepted[1].ScheduledFor)
}

func TestResolveHonorsMinimumSpacing(t *testing.T) {
	table := Table{models.PlatformInstagram: {{At: tod("11:30"), Rank: 1}, {At: tod("12:00"), Rank: 2}, {At: tod("14:00"), Rank: 3}}}
	c := models.Constraints{OptimizeTimings: true, MinSpacing: 90 * time.Minute}
	existing := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformInstagram, TargetDate: day(2026, 2, 2), AssignedTime: tod("11:00")},
	}
	drafts := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformInstagram, TargetDate: day(2026, 2, 2), AssignedTime: tod("11:30")},
	}

	res := NewResolver(table).Resolve(ResolveRequest{Drafts: drafts, Existing: existing, Constraints: c})
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, tod("14:00"), res.Accepted[0].AssignedTime)
}

func TestResolvePushesToNextDateAndRejectsOnExhaustion(t *testing.T) {
	table := Table{models.PlatformLinkedIn: {{At: tod("08:00"), Rank: 1}}}
	c := models.Constraints{OptimizeTimings: true, SkipWeekends: true, LookaheadDays: 3}

	// Friday 2026-01-09 is taken; the weekend is skipped so the draft lands on Monday.
	existing := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 9), AssignedTime: tod("08:00")},
	}
	drafts := []*models.Occurrence{
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 9), AssignedTime: tod("08:00")},
		{AccountID: "acct", Platform: models.PlatformLinkedIn, TargetDate: day(2026, 1, 9), AssignedTime: tod("08:00")},
		{AccountID: "acct", Platform: models.PlatformTwitter, TargetDate: day(2026, 1, 9), AssignedTime: tod("09:00")},
	}

	res := NewResolver(table).Resolve(ResolveRequest{Drafts: drafts, Existing: existing, Constraints: c})
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "2026-01-12", res.Accepted[0].DateKey())

	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0].Err, ErrConflictUnresolved)
	assert.ErrorIs(t, res.Rejected[1].Err, ErrNoPlatformConfigured)
}

func TestResolveLeavesNoDuplicateSlots(t *testing.T) {
	a := NewAssigner(testTable())
	r := NewResolver(testTable())
	c := models.Constraints{OptimizeTimings: true, MinSpacing: 30 * time.Minute}

	var dates []time.Time
	for i := 0; i < 10; i++ {
		dates = append(dates, day(2026, 3, 2), day(2026, 3, 3))
	}
	drafts, err := a.Assign(AssignRequest{
		AccountID: "acct", Dates: dates,
		Platforms:   []models.Platform{models.PlatformLinkedIn, models.PlatformTwitter},
		Constraints: c,
	})
	require.NoError(t, err)

	res := r.Resolve(ResolveRequest{Drafts: drafts, Constraints: c, HorizonDays: 30})
	require.Empty(t, res.Rejected)
	require.Len(t, res.Accepted, len(drafts))

	byDay := map[string][]*models.Occurrence{}
	for _, o := range res.Accepted {
		key := string(o.Platform) + "|" + o.DateKey()
		for _, other := range byDay[key] {
			diff := o.AssignedTime - other.AssignedTime
			if diff < 0 {
				diff = -diff
			}
			assert.GreaterOrEqual(t, int(diff), 30, "%s %s vs %s", key, o.AssignedTime, other.AssignedTime)
		}
		byDay[key] = append(byDay[key], o)
	}
}
