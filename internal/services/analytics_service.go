package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/justsurfingit/nextsteps/internal/models"
	"gorm.io/gorm"
)

const activityWeeks = 12

// CSVHeader is the first row of an export.
var CSVHeader = []string{"ID", "Company", "Job Title", "Status", "Date Applied", "Notes", "Email Link"}

type Summary struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
	Offers int64 `json:"offers"`
	// Share of applications that got any response, e.g. "42.9%".
	ResponseRate string `json:"response_rate"`
}

type WeekCount struct {
	// Monday of the week, YYYY-MM-DD.
	Week  string `json:"week"`
	Count int    `json:"count"`
}

type Stats struct {
	Summary        Summary          `json:"summary"`
	FunnelCounts   map[string]int64 `json:"funnel_counts"`
	WeeklyActivity []WeekCount      `json:"weekly_activity"`
}

type AnalyticsService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{DB: db, now: time.Now}
}

// Stats summarizes one user's applications.
func (s *AnalyticsService) Stats(ctx context.Context, userID uint) (*Stats, error) {
	db := s.DB.WithContext(ctx)

	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	err := db.Model(&models.JobApplication{}).
		Select("status, count(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: status counts: %v", ErrPersistence, err)
	}

	stats := &Stats{FunnelCounts: make(map[string]int64, len(models.AllStatuses))}
	for _, st := range models.AllStatuses {
		stats.FunnelCounts[string(st)] = 0
	}
	var responded int64
	for _, r := range rows {
		stats.Summary.Total += r.Count
		if _, ok := stats.FunnelCounts[string(r.Status)]; ok {
			stats.FunnelCounts[string(r.Status)] = r.Count
		}
		switch r.Status {
		case models.StatusApplied, models.StatusInterviewing:
			stats.Summary.Active += r.Count
		case models.StatusOffer:
			stats.Summary.Offers += r.Count
		}
		if r.Status != models.StatusApplied {
			responded += r.Count
		}
	}
	stats.Summary.ResponseRate = "0%"
	if stats.Summary.Total > 0 {
		stats.Summary.ResponseRate = fmt.Sprintf("%.1f%%", float64(responded)/float64(stats.Summary.Total)*100)
	}

	now := s.now().UTC()
	var dates []time.Time
	err = db.Model(&models.JobApplication{}).
		Where("user_id = ? AND date_applied >= ?", userID, now.AddDate(0, 0, -7*activityWeeks)).
		Pluck("date_applied", &dates).Error
	if err != nil {
		return nil, fmt.Errorf("%w: weekly activity: %v", ErrPersistence, err)
	}
	stats.WeeklyActivity = weeklyActivity(now, dates)
	return stats, nil
}

// weeklyActivity counts dates per Monday-starting week for the last
// activityWeeks weeks, oldest first.
func weeklyActivity(now time.Time, dates []time.Time) []WeekCount {
	current := mondayOf(now)
	weeks := make([]WeekCount, activityWeeks)
	index := make(map[string]int, activityWeeks)
	for i := 0; i < activityWeeks; i++ {
		key := current.AddDate(0, 0, -7*(activityWeeks-1-i)).Format("2006-01-02")
		weeks[i] = WeekCount{Week: key}
		index[key] = i
	}
	for _, d := range dates {
		if i, ok := index[mondayOf(d.UTC()).Format("2006-01-02")]; ok {
			weeks[i].Count++
		}
	}
	return weeks
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// ExportCSV writes the user's applications as CSV to w.
func (s *AnalyticsService) ExportCSV(ctx context.Context, userID uint, w io.Writer) error {
	var jobs []models.JobApplication
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&jobs).Error; err != nil {
		return fmt.Errorf("%w: load jobs: %v", ErrPersistence, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, job := range jobs {
		date := ""
		if !job.DateApplied.IsZero() {
			date = job.DateApplied.UTC().Format("2006-01-02")
		}
		row := []string{
			strconv.FormatUint(uint64(job.ID), 10),
			job.CompanyName,
			job.JobTitle,
			string(job.Status),
			date,
			models.Deref(job.Notes),
			models.Deref(job.EmailThreadLink),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
