package dtos

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type JobCreateRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	JobTitle    string `json:"job_title" binding:"required"`

	// Optional Fields
	Status          string  `json:"status" binding:"omitempty,jobstatus"` // Defaults to "APPLIED" if empty
	Notes           *string `json:"notes"`
	EmailThreadLink *string `json:"email_thread_link"`
	DateApplied     *Date   `json:"date_applied"`
}

// JobUpdateRequest is a partial update. Nil fields are left alone; empty
// status, company and title are ignored as well.
type JobUpdateRequest struct {
	Status          *string `json:"status" binding:"omitempty,jobstatus"`
	Notes           *string `json:"notes"`
	CompanyName     *string `json:"company_name"`
	JobTitle        *string `json:"job_title"`
	EmailThreadLink *string `json:"email_thread_link"`
	DateApplied     *Date   `json:"date_applied"`
}

// Date accepts an RFC 3339 timestamp or a bare YYYY-MM-DD day, which is
// what the date picker sends.
type Date struct {
	time.Time
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Time.Format(time.RFC3339))
}
