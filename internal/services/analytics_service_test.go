package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/justsurfingit/nextsteps/internal/database/dbtest"
	"github.com/justsurfingit/nextsteps/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsService_Stats(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAnalyticsService(db)
	// Saturday
	svc.now = func() time.Time { return scanClock }
	me := dbtest.CreateUser(t, db, "me@example.com", "")
	other := dbtest.CreateUser(t, db, "other@example.com", "")

	add := func(userID uint, company string, status models.JobStatus, applied time.Time) {
		require.NoError(t, db.Create(&models.JobApplication{
			UserID: userID, CompanyName: company, JobTitle: "Engineer", Status: status, DateApplied: applied,
		}).Error)
	}
	// Monday of the current week.
	add(me.ID, "A", models.StatusApplied, time.Date(2024, 2, 5, 9, 0, 0, 0, time.UTC))
	// Sunday and Tuesday of the previous week.
	add(me.ID, "B", models.StatusApplied, time.Date(2024, 2, 4, 23, 0, 0, 0, time.UTC))
	add(me.ID, "C", models.StatusInterviewing, time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC))
	add(me.ID, "D", models.StatusRejected, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC))
	// Outside the 12 week window.
	add(me.ID, "E", models.StatusOffer, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	add(other.ID, "X", models.StatusOffer, time.Date(2024, 2, 6, 0, 0, 0, 0, time.UTC))

	stats, err := svc.Stats(context.Background(), me.ID)
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 5, Active: 3, Offers: 1, ResponseRate: "60.0%"}, stats.Summary)
	assert.Equal(t, map[string]int64{"APPLIED": 2, "INTERVIEWING": 1, "REJECTED": 1, "OFFER": 1}, stats.FunnelCounts)

	require.Len(t, stats.WeeklyActivity, 12)
	assert.Equal(t, "2023-11-20", stats.WeeklyActivity[0].Week)
	assert.Equal(t, "2024-02-05", stats.WeeklyActivity[11].Week)
	assert.Equal(t, 1, stats.WeeklyActivity[11].Count)
	assert.Equal(t, "2024-01-29", stats.WeeklyActivity[10].Week)
	assert.Equal(t, 2, stats.WeeklyActivity[10].Count)
	assert.Equal(t, "2023-11-27", stats.WeeklyActivity[1].Week)
	assert.Equal(t, 1, stats.WeeklyActivity[1].Count)
}

func TestAnalyticsService_StatsEmpty(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAnalyticsService(db)
	me := dbtest.CreateUser(t, db, "me@example.com", "")

	stats, err := svc.Stats(context.Background(), me.ID)
	require.NoError(t, err)
	assert.Equal(t, "0%", stats.Summary.ResponseRate)
	assert.Len(t, stats.FunnelCounts, 4)
	assert.Len(t, stats.WeeklyActivity, 12)
}

func TestMondayOf(t *testing.T) {
	sunday := time.Date(2024, 2, 11, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), mondayOf(sunday))
	monday := time.Date(2024, 2, 5, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), mondayOf(monday))
	// Crosses a month boundary.
	assert.Equal(t, time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC), mondayOf(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestAnalyticsService_ExportCSV(t *testing.T) {
	db := dbtest.New(t)
	svc := NewAnalyticsService(db)
	me := dbtest.CreateUser(t, db, "me@example.com", "")
	require.NoError(t, db.Create(&models.JobApplication{
		UserID:          me.ID,
		CompanyName:     "Acme, Inc.",
		JobTitle:        "Backend Engineer",
		Status:          models.StatusOffer,
		DateApplied:     time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		Notes:           models.StringPtr("said \"yes\""),
		EmailThreadLink: models.StringPtr(models.ThreadLink("t1")),
	}).Error)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), me.ID, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"1", "Acme, Inc.", "Backend Engineer", "OFFER", "2024-01-02", `said "yes"`, models.ThreadLink("t1")}, rows[1])
}
