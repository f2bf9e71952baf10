package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailUser        = "me"
	gmailMaxPageSize = 100
	// Automated calendar invites match the keywords but never carry
	// application news.
	calendarSender = "calendar-notification@google.com"
)

// relevanceTerms bias the Gmail search toward application correspondence.
// The model sorts out the false positives.
var relevanceTerms = []string{
	"application", "applied", "interview", "offer", "rejection", "update", "status",
	`"next steps"`, `"thank you"`, `"job description"`, `"candidacy"`, `"hiring"`,
	`"recruiter"`, `"talent"`,
}

// EmailMessage is one fetched email, flattened to what the scan needs.
type EmailMessage struct {
	ID       string
	ThreadID string
	Subject  string
	Sender   string
	// Raw RFC 2822 Date header.
	Date string
	Body string
}

// MailQuery bounds one retrieval.
type MailQuery struct {
	Since      time.Time
	MaxResults int
}

// MailSource is the mailbox the scan reads from.
type MailSource interface {
	FetchRecent(ctx context.Context, credential string, q MailQuery) ([]EmailMessage, error)
	Profile(ctx context.Context, credential string) (string, error)
}

// EmailService reads a user's Gmail inbox with their OAuth access token.
type EmailService struct {
	log           *slog.Logger
	limiter       *rate.Limiter
	concurrency   int
	retryBackoff  time.Duration
	clientOptions []option.ClientOption
}

// NewEmailService builds the Gmail mail source. rps bounds message detail
// fetches. Extra client options are appended after the credential, so a
// test can point the client at a fake endpoint.
func NewEmailService(log *slog.Logger, rps float64, opts ...option.ClientOption) *EmailService {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &EmailService{
		log:           log,
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		concurrency:   10,
		retryBackoff:  500 * time.Millisecond,
		clientOptions: opts,
	}
}

// BuildQuery returns the Gmail search expression for messages after since.
func BuildQuery(since time.Time) string {
	return fmt.Sprintf("(%s) -from:%s after:%s",
		strings.Join(relevanceTerms, " OR "), calendarSender, since.Format("2006/01/02"))
}

func (s *EmailService) client(ctx context.Context, credential string) (*gmail.Service, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrAuthentication)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, s.clientOptions...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create Gmail service: %v", ErrAuthentication, err)
	}
	return svc, nil
}

// Profile returns the mailbox address the credential belongs to. It doubles
// as the cheap validity check for a credential.
func (s *EmailService) Profile(ctx context.Context, credential string) (string, error) {
	svc, err := s.client(ctx, credential)
	if err != nil {
		return "", err
	}
	profile, err := svc.Users.GetProfile(gmailUser).Context(ctx).Do()
	if err != nil {
		return "", classifyGmailError(err)
	}
	return profile.EmailAddress, nil
}

// FetchRecent lists matching message ids page by page up to q.MaxResults
// and fetches their contents. When a later page or some fetches fail, the
// messages retrieved so far are returned together with an ErrRetrieval.
func (s *EmailService) FetchRecent(ctx context.Context, credential string, q MailQuery) ([]EmailMessage, error) {
	svc, err := s.client(ctx, credential)
	if err != nil {
		return nil, err
	}

	query := BuildQuery(q.Since)
	s.log.Info("listing messages", slog.Int("max_results", q.MaxResults))

	var (
		ids       []string
		pageToken string
		listErr   error
	)
	for len(ids) < q.MaxResults {
		pageSize := min(gmailMaxPageSize, q.MaxResults-len(ids))
		page, next, err := s.List(ctx, svc, query, pageSize, pageToken)
		if err != nil {
			if len(ids) == 0 || errors.Is(err, ErrAuthentication) {
				return nil, err
			}
			listErr = err
			break
		}
		ids = append(ids, page...)
		pageToken = next
		if next == "" || len(page) == 0 {
			break
		}
	}
	if len(ids) > q.MaxResults {
		ids = ids[:q.MaxResults]
	}
	s.log.Info("fetching message details", slog.Int("count", len(ids)))

	msgs, err := s.GetMany(ctx, svc, ids)
	if err != nil {
		return msgs, err
	}
	return msgs, listErr
}

// List returns one page of message ids for query.
func (s *EmailService) List(ctx context.Context, svc *gmail.Service, query string, pageSize int, pageToken string) ([]string, string, error) {
	var resp *gmail.ListMessagesResponse
	err := retry(ctx, 3, s.retryBackoff, s.log, func() error {
		call := svc.Users.Messages.List(gmailUser).Q(query).MaxResults(int64(pageSize))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var e error
		resp, e = call.Context(ctx).Do()
		return e
	})
	if err != nil {
		return nil, "", classifyGmailError(err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// GetMany fetches full messages concurrently and returns them in the order
// of ids. Individual failures are logged and skipped.
func (s *EmailService) GetMany(ctx context.Context, svc *gmail.Service, ids []string) ([]EmailMessage, error) {
	results := make([]*EmailMessage, len(ids))
	failed := make([]error, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			var msg *gmail.Message
			err := retry(gctx, 2, s.retryBackoff, s.log, func() error {
				var e error
				msg, e = svc.Users.Messages.Get(gmailUser, id).Format("full").Context(gctx).Do()
				return e
			})
			if err != nil {
				err = classifyGmailError(err)
				if errors.Is(err, ErrAuthentication) {
					return err
				}
				s.log.Warn("message fetch failed", slog.String("message_id", id), slog.Any("error", err))
				failed[i] = err
				return nil
			}
			em := toEmailMessage(msg)
			results[i] = &em
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrAuthentication) {
			return nil, err
		}
		return collect(results), fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	msgs := collect(results)
	if len(ids) > 0 && len(msgs) == 0 {
		return nil, fmt.Errorf("%w: all %d message fetches failed: %v", ErrRetrieval, len(ids), errors.Join(failed...))
	}
	return msgs, nil
}

func collect(results []*EmailMessage) []EmailMessage {
	msgs := make([]EmailMessage, 0, len(results))
	for _, m := range results {
		if m != nil {
			msgs = append(msgs, *m)
		}
	}
	return msgs
}

func toEmailMessage(msg *gmail.Message) EmailMessage {
	headers := parseHeaders(msg)
	return EmailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Subject:  headers["subject"],
		Sender:   headers["from"],
		Date:     headers["date"],
		Body:     getEmailBody(msg),
	}
}

// --- HELPERS ---

// retry executes f with exponential backoff. Errors that cannot succeed on
// a second attempt (bad credential, bad request) fail fast.
func retry(ctx context.Context, attempts int, sleep time.Duration, log *slog.Logger, f func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = f(); err == nil {
			return nil
		}
		if !isRetryable(err) || i == attempts-1 {
			break
		}
		log.Warn("gmail API error, retrying", slog.Any("error", err), slog.Duration("backoff", sleep))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return err
}

func isRetryable(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 429 || gErr.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// classifyGmailError separates credential problems from everything else.
func classifyGmailError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == 401:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		case gErr.Code == 403 && !isQuotaError(gErr):
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrRetrieval, err)
}

func isQuotaError(gErr *googleapi.Error) bool {
	for _, item := range gErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}

func parseHeaders(msg *gmail.Message) map[string]string {
	res := make(map[string]string)
	if msg.Payload == nil {
		return res
	}
	for _, h := range msg.Payload.Headers {
		name := strings.ToLower(h.Name)
		if _, seen := res[name]; !seen {
			res[name] = h.Value
		}
	}
	return res
}

// getEmailBody prefers text/plain anywhere in the MIME tree, then text/html
// rendered to text, then the Gmail snippet.
func getEmailBody(msg *gmail.Message) string {
	if msg.Payload != nil {
		if body := findPart(msg.Payload, "text/plain"); strings.TrimSpace(body) != "" {
			return body
		}
		if html := findPart(msg.Payload, "text/html"); html != "" {
			if text := htmlToText(html); text != "" {
				return text
			}
		}
		// Single part message without a usable mime type.
		if len(msg.Payload.Parts) == 0 && msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
			if body := decodeBody(msg.Payload.Body.Data); strings.TrimSpace(body) != "" {
				return body
			}
		}
	}
	return msg.Snippet
}

func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if body := findPart(child, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decodeBody(data string) string {
	if d, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(d)
	}
	if d, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(d)
	}
	return ""
}

func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var _ MailSource = (*EmailService)(nil)
