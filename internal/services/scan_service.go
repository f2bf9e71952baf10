package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/justsurfingit/nextsteps/internal/database"
	"github.com/justsurfingit/nextsteps/internal/metrics"
	"github.com/justsurfingit/nextsteps/internal/models"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	unknownCompany = "Unknown Company"
	unknownRole    = "Unknown Role"
)

// RecordTx is one scan's view of a user's records. Lookups must observe
// writes staged earlier through the same RecordTx.
type RecordTx interface {
	FindByThread(threadRef string) (*models.JobApplication, error)
	FindByCompanyTitle(company, title string) (*models.JobApplication, error)
	Insert(rec *models.JobApplication) error
	Update(rec *models.JobApplication, fields map[string]any) error
	Commit() error
	Rollback() error
}

// RecordStore opens scan transactions scoped to one user.
type RecordStore interface {
	Begin(ctx context.Context, userID uint) (RecordTx, error)
}

type gormRecordStore struct {
	store *database.RecordStore
}

// NewGormRecordStore adapts the database record store to the scan pipeline.
func NewGormRecordStore(db *gorm.DB) RecordStore {
	return gormRecordStore{store: database.NewRecordStore(db)}
}

func (g gormRecordStore) Begin(ctx context.Context, userID uint) (RecordTx, error) {
	tx, err := g.store.Begin(ctx, userID)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ScanOptions bound a single scan.
type ScanOptions struct {
	MaxResults int
	WindowDays int
	// Prompt text is cut to this many characters.
	BodyLimit int
	Timeout   time.Duration
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{MaxResults: 500, WindowDays: 45, BodyLimit: 8000, Timeout: 5 * time.Minute}
}

// ScanReport is returned to the caller of one scan and never stored.
type ScanReport struct {
	Message string   `json:"message"`
	Debug   []string `json:"debug"`

	Scanned     int  `json:"-"`
	Processed   int  `json:"-"`
	Ignored     int  `json:"-"`
	Duplicates  int  `json:"-"`
	Failed      int  `json:"-"`
	Interrupted bool `json:"-"`
}

func (r *ScanReport) logf(format string, args ...any) {
	r.Debug = append(r.Debug, fmt.Sprintf(format, args...))
}

// ScanService reconciles a user's recent mail with their job applications.
type ScanService struct {
	Mail      MailSource
	Extractor Extractor
	Records   RecordStore
	Metrics   metrics.ScanRecorder

	opts  ScanOptions
	log   *slog.Logger
	now   func() time.Time
	group singleflight.Group
}

func NewScanService(mailSource MailSource, extractor Extractor, records RecordStore, rec metrics.ScanRecorder, opts ScanOptions, log *slog.Logger) *ScanService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &ScanService{
		Mail:      mailSource,
		Extractor: extractor,
		Records:   records,
		Metrics:   rec,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// Scan runs one reconciliation pass for user. Only ErrAuthentication is
// returned as an error; every other failure ends up in the report.
//
// Concurrent scans for the same user share a single pass: later callers
// wait for the running scan and receive its report. The shared pass is
// detached from the first caller's cancellation and bounded by the scan
// timeout instead.
func (s *ScanService) Scan(ctx context.Context, user *models.User, credential string) (*ScanReport, error) {
	passCtx := context.WithoutCancel(ctx)
	v, err, shared := s.group.Do(user.Email, func() (any, error) {
		return s.scan(passCtx, user, credential)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Info("joined running scan", slog.String("user", user.Email))
	}
	return v.(*ScanReport), nil
}

func (s *ScanService) scan(ctx context.Context, user *models.User, credential string) (*ScanReport, error) {
	start := s.now()
	log := s.log.With(slog.String("scan_id", uuid.NewString()), slog.String("user", user.Email))
	report := &ScanReport{Debug: []string{}}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	log.Info("scan started")
	emails, fetchErr := s.Mail.FetchRecent(ctx, credential, MailQuery{
		Since:      start.AddDate(0, 0, -s.opts.WindowDays),
		MaxResults: s.opts.MaxResults,
	})
	if fetchErr != nil {
		if errors.Is(fetchErr, ErrAuthentication) {
			log.Warn("scan rejected", slog.Any("error", fetchErr))
			s.Metrics.RecordScan(metrics.ScanUnauthorized, time.Since(start))
			return nil, fetchErr
		}
		log.Error("mail retrieval failed", slog.Any("error", fetchErr), slog.Int("retrieved", len(emails)))
		if len(emails) == 0 {
			return s.interrupted(report, fetchErr, start, log), nil
		}
	}
	report.Scanned = len(emails)

	// The transaction outlives a scan timeout so the staged work can still
	// be committed after the loop stops early.
	tx, err := s.Records.Begin(context.WithoutCancel(ctx), user.ID)
	if err != nil {
		return s.interrupted(report, fmt.Errorf("%w: %v", ErrPersistence, err), start, log), nil
	}

	ignoreList := user.IgnoreList()
	scanTime := start.UTC()

	var loopErr error
	for _, msg := range emails {
		if err := ctx.Err(); err != nil {
			loopErr = err
			break
		}
		if err := s.processMessage(ctx, tx, msg, ignoreList, scanTime, report, log); err != nil {
			loopErr = err
			break
		}
	}
	if loopErr == nil && fetchErr != nil {
		loopErr = fetchErr
	}

	if err := tx.Commit(); err != nil {
		loopErr = errors.Join(loopErr, fmt.Errorf("%w: commit: %v", ErrPersistence, err))
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Warn("rollback after failed commit", slog.Any("error", rbErr))
		}
	}

	if loopErr != nil {
		return s.interrupted(report, loopErr, start, log), nil
	}

	report.Message = fmt.Sprintf("Scanned %d emails, found %d job applications.", report.Scanned, report.Processed)
	s.Metrics.RecordScan(metrics.ScanCompleted, time.Since(start))
	log.Info("scan finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("processed", report.Processed),
		slog.Int("ignored", report.Ignored),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *ScanService) interrupted(report *ScanReport, err error, start time.Time, log *slog.Logger) *ScanReport {
	report.Interrupted = true
	report.logf("CRITICAL ERROR: %v", err)
	report.Message = fmt.Sprintf("Scan interrupted. Scanned %d emails, found %d so far. Error: %v",
		report.Scanned, report.Processed, err)
	s.Metrics.RecordScan(metrics.ScanInterrupted, time.Since(start))
	log.Error("scan interrupted", slog.Any("error", err), slog.Int("processed", report.Processed))
	return report
}

// processMessage handles one email. Failures local to the message are
// recorded in the report and swallowed; a returned error stops the scan.
func (s *ScanService) processMessage(ctx context.Context, tx RecordTx, msg EmailMessage, ignoreList []string, scanTime time.Time, report *ScanReport, log *slog.Logger) error {
	log = log.With(slog.String("message_id", msg.ID), slog.String("thread_id", msg.ThreadID))

	if MatchesIgnoreList(ignoreList, msg.Sender) {
		log.Info("skipping email from ignored sender", slog.String("sender", msg.Sender))
		report.Ignored++
		s.Metrics.RecordMessage(metrics.OutcomeIgnored)
		return nil
	}

	var threadRef string
	if msg.ThreadID != "" {
		threadRef = models.ThreadLink(msg.ThreadID)
		existing, err := tx.FindByThread(threadRef)
		if err != nil {
			return fmt.Errorf("%w: thread lookup: %v", ErrPersistence, err)
		}
		if existing != nil {
			log.Info("skipping already scanned thread", slog.String("company", existing.CompanyName))
			report.Duplicates++
			s.Metrics.RecordMessage(metrics.OutcomeDuplicate)
			return nil
		}
	}

	text := extractionText(msg, s.opts.BodyLimit)
	began := time.Now()
	cand, err := s.Extractor.Extract(ctx, text)
	s.Metrics.RecordExtraction(time.Since(began), err)
	if err != nil {
		log.Warn("extraction failed", slog.Any("error", err))
		report.Failed++
		report.logf("Subject: %s (Body Len: %d) -> Error extracting: %v", msg.Subject, utf8.RuneCountInString(msg.Body), err)
		s.Metrics.RecordMessage(metrics.OutcomeFailed)
		return nil
	}

	report.logf("Subject: %s (Body Len: %d) -> Parsed: %s", msg.Subject, utf8.RuneCountInString(msg.Body), describeCandidate(cand))
	if cand == nil {
		s.Metrics.RecordMessage(metrics.OutcomeNoMatch)
		return nil
	}

	outcome, err := s.merge(tx, msg, threadRef, cand, scanTime, log)
	if err != nil {
		log.Warn("persisting email failed", slog.Any("error", err))
		report.Failed++
		report.logf("Error persisting: %v", err)
		s.Metrics.RecordMessage(metrics.OutcomeFailed)
		return nil
	}
	report.Processed++
	s.Metrics.RecordMessage(outcome)
	return nil
}

// merge folds a candidate into the user's records. An existing record with
// the same company and title only gets its date and thread refreshed.
//
// Two different applications with the same company and title collapse into
// one record here; see DESIGN.md.
func (s *ScanService) merge(tx RecordTx, msg EmailMessage, threadRef string, cand *Candidate, scanTime time.Time, log *slog.Logger) (string, error) {
	company := strings.TrimSpace(cand.CompanyName)
	if company == "" {
		company = unknownCompany
	}
	title := strings.TrimSpace(cand.JobTitle)
	if title == "" {
		title = unknownRole
	}
	applied := resolveAppliedDate(msg.Date, scanTime, log)

	existing, err := tx.FindByCompanyTitle(company, title)
	if err != nil {
		return "", fmt.Errorf("%w: lookup %s / %s: %v", ErrPersistence, company, title, err)
	}

	if existing != nil {
		fields := map[string]any{"date_applied": applied}
		if threadRef != "" {
			fields["email_thread_link"] = threadRef
		}
		if err := tx.Update(existing, fields); err != nil {
			return "", fmt.Errorf("%w: update job %d: %v", ErrPersistence, existing.ID, err)
		}
		existing.DateApplied = applied
		if threadRef != "" {
			existing.EmailThreadLink = models.StringPtr(threadRef)
		}
		log.Info("updated existing job", slog.Uint64("job_id", uint64(existing.ID)), slog.Time("date_applied", applied))
		return metrics.OutcomeUpdated, nil
	}

	status, ok := models.ParseJobStatus(strings.TrimSpace(cand.Status))
	if !ok {
		status = models.StatusApplied
	}
	rec := &models.JobApplication{
		CompanyName:     company,
		JobTitle:        title,
		Status:          status,
		DateApplied:     applied,
		SenderEmail:     models.StringPtr(msg.Sender),
		EmailThreadLink: models.StringPtr(threadRef),
		Notes:           models.StringPtr(cand.Notes),
	}
	if err := tx.Insert(rec); err != nil {
		return "", fmt.Errorf("%w: insert %s / %s: %v", ErrPersistence, company, title, err)
	}
	log.Info("created job", slog.String("company", company), slog.String("title", title), slog.String("status", string(status)))
	return metrics.OutcomeCreated, nil
}

// resolveAppliedDate trusts the Date header over anything the model says.
// The result is always UTC; an unusable header falls back to the scan time.
func resolveAppliedDate(header string, scanTime time.Time, log *slog.Logger) time.Time {
	if strings.TrimSpace(header) == "" {
		return scanTime.UTC()
	}
	t, err := mail.ParseDate(header)
	if err != nil {
		log.Warn("unparseable Date header", slog.String("date", header), slog.Any("error", err))
		return scanTime.UTC()
	}
	return t.UTC()
}

// extractionText is the prompt payload: subject and body, cut to limit
// characters.
func extractionText(msg EmailMessage, limit int) string {
	full := fmt.Sprintf("Subject: %s\n\nBody:\n%s", msg.Subject, msg.Body)
	return truncateRunes(full, limit)
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

func describeCandidate(c *Candidate) string {
	if c == nil {
		return "no match"
	}
	return fmt.Sprintf("{company: %q, title: %q, status: %q}", c.CompanyName, c.JobTitle, c.Status)
}
