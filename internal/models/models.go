package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// JobStatus is the lifecycle stage of a job application.
type JobStatus string

const (
	StatusApplied      JobStatus = "APPLIED"
	StatusInterviewing JobStatus = "INTERVIEWING"
	StatusRejected     JobStatus = "REJECTED"
	StatusOffer        JobStatus = "OFFER"
)

// AllStatuses lists every status in funnel order.
var AllStatuses = []JobStatus{StatusApplied, StatusInterviewing, StatusRejected, StatusOffer}

// ParseJobStatus reports whether s names one of the known statuses.
// Matching is exact, the same way the stored enum values are written.
func ParseJobStatus(s string) (JobStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Email   string `gorm:"uniqueIndex;not null" json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`

	// Comma separated list of sender substrings to ignore
	IgnoredEmails string `gorm:"type:text;default:''" json:"ignored_emails"`
}

// IgnoreList returns the normalized ignore entries: trimmed, lowercased,
// empties dropped.
func (u *User) IgnoreList() []string {
	return ParseIgnoreList(u.IgnoredEmails)
}

// ParseIgnoreList splits a comma separated ignore list.
func ParseIgnoreList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type JobApplication struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint `gorm:"index;not null" json:"user_id"`
	User   User `json:"-"`

	CompanyName string    `gorm:"index;not null" json:"company_name"`
	JobTitle    string    `gorm:"not null" json:"job_title"`
	Status      JobStatus `gorm:"type:varchar(16);default:'APPLIED'" json:"status"`
	DateApplied time.Time `gorm:"index" json:"date_applied"`

	// Used to filter and prune by sender later
	SenderEmail     *string `json:"sender_email"`
	EmailThreadLink *string `gorm:"index" json:"email_thread_link"`
	Notes           *string `gorm:"type:text" json:"notes"`
}

// ThreadLinkPrefix turns a Gmail thread id into the link stored on records.
const ThreadLinkPrefix = "https://mail.google.com/mail/u/0/#inbox/"

// ThreadLink returns the thread reference stored for a Gmail thread id.
func ThreadLink(threadID string) string {
	return ThreadLinkPrefix + threadID
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
