// Package comments implements comment intake, preview and listing.
package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/steemit/commentd/internal/cache"
	"github.com/steemit/commentd/internal/db"
	"github.com/steemit/commentd/internal/guard"
	"github.com/steemit/commentd/internal/markdown"
	"github.com/steemit/commentd/internal/models"
	"github.com/steemit/commentd/internal/turnstile"
	"github.com/steemit/commentd/pkg/logging"
	"github.com/steemit/commentd/pkg/telemetry"
)

// SchemaVersion is reported with every preview
const SchemaVersion = 1

// Listing bounds
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 50
	// MaxPage keeps (page-1)*limit within an int32 offset
	MaxPage = math.MaxInt32 / MaxLimit
)

var (
	submissions = telemetry.NewCounter("comment_submissions_total", "Comment submissions by outcome")
	previews    = telemetry.NewCounter("preview_renders_total", "Markdown previews rendered")
)

// Store persists and lists comments
type Store interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListBySlug(ctx context.Context, slug string, page, limit int) ([]models.Comment, error)
	ListThread(ctx context.Context, slug string, max int) ([]models.Comment, error)
}

// Guard rate limits actions by key
type Guard interface {
	CheckAndTouch(ctx context.Context, key string, minInterval time.Duration) guard.Decision
}

// Config holds the pipeline windows and limits
type Config struct {
	PreviewInterval time.Duration
	CommentInterval time.Duration
	ThreadMax       int
}

// Submission is an incoming comment as received from the client
type Submission struct {
	Slug      string
	Author    string
	Body      string
	ParentID  string
	Token     string
	ClientIP  string
	UserAgent string
}

// PreviewResult is the rendered preview of a draft
type PreviewResult struct {
	HTML          string `json:"html"`
	SchemaVersion int    `json:"schemaVersion"`
}

// Service runs the comment pipeline
type Service struct {
	store    Store
	guard    Guard
	verifier turnstile.Verifier
	cfg      Config
	render   func(string) string
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source used for created_at
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRenderer overrides the markdown renderer
func WithRenderer(render func(string) string) Option {
	return func(s *Service) { s.render = render }
}

// NewService creates a comment service
func NewService(store Store, g Guard, verifier turnstile.Verifier, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		guard:    g,
		verifier: verifier,
		cfg:      cfg,
		render:   markdown.Render,
		now:      time.Now,
		logger:   logging.WithComponent("comments"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates, rate limits, verifies, renders and stores a comment. Each stage runs only
// when the previous one passed.
func (s *Service) Submit(ctx context.Context, sub Submission) (*models.Comment, error) {
	ctx, span := telemetry.StartSpan(ctx, "comments.submit")
	defer span.End()

	slug := strings.TrimSpace(sub.Slug)
	author := strings.TrimSpace(sub.Author)
	body := strings.TrimSpace(sub.Body)
	token := strings.TrimSpace(sub.Token)
	span.SetAttributes(attribute.String("slug", slug))

	if slug == "" || author == "" || body == "" || token == "" {
		submissions.Inc(ctx, "outcome", "invalid")
		return nil, &ValidationError{Message: "missing fields"}
	}

	parentID, err := parseParentID(sub.ParentID)
	if err != nil {
		submissions.Inc(ctx, "outcome", "invalid")
		return nil, err
	}

	if d := s.guard.CheckAndTouch(ctx, guard.CommentKey(sub.ClientIP, slug), s.cfg.CommentInterval); !d.Allowed {
		submissions.Inc(ctx, "outcome", "rate_limited")
		return nil, &RateLimitedError{Message: "slow down", RetryAfter: d.RetryAfter}
	}

	if !s.verifier.Verify(ctx, token, sub.ClientIP) {
		submissions.Inc(ctx, "outcome", "unverified")
		return nil, ErrVerificationFailed
	}

	body = truncate(body, models.MaxBodyLength)
	comment := &models.Comment{
		Slug:      slug,
		Author:    truncate(author, models.MaxAuthorLength),
		Body:      body,
		BodyHTML:  s.render(body),
		CreatedAt: s.now().UnixMilli(),
		ParentID:  parentID,
		IPHash:    cache.HashKey(sub.ClientIP),
		UserAgent: truncate(sub.UserAgent, models.MaxUserAgentLength),
	}

	if err := s.store.Create(ctx, comment); err != nil {
		if errors.Is(err, db.ErrParentNotFound) {
			submissions.Inc(ctx, "outcome", "invalid")
			return nil, &ValidationError{Message: "unknown parent"}
		}
		span.RecordError(err)
		submissions.Inc(ctx, "outcome", "error")
		return nil, fmt.Errorf("failed to store comment: %w", err)
	}

	submissions.Inc(ctx, "outcome", "accepted")
	s.logger.Info("Comment accepted",
		zap.String("slug", comment.Slug),
		zap.Int64("id", comment.ID),
		zap.Bool("reply", parentID.Valid),
	)
	return comment, nil
}

// Preview renders a draft after the preview rate limit
func (s *Service) Preview(ctx context.Context, clientIP, md string) (*PreviewResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "comments.preview")
	defer span.End()

	if d := s.guard.CheckAndTouch(ctx, guard.PreviewKey(clientIP), s.cfg.PreviewInterval); !d.Allowed {
		return nil, &RateLimitedError{Message: "too many previews", RetryAfter: d.RetryAfter}
	}

	html := s.render(truncate(md, models.MaxBodyLength))
	previews.Inc(ctx)
	return &PreviewResult{HTML: html, SchemaVersion: SchemaVersion}, nil
}

// List returns one page of comments for slug, newest first
func (s *Service) List(ctx context.Context, slug string, page, limit int) ([]CommentView, error) {
	ctx, span := telemetry.StartSpan(ctx, "comments.list")
	defer span.End()

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, &ValidationError{Message: "missing slug"}
	}

	rows, err := s.store.ListBySlug(ctx, slug, ClampPage(page), ClampLimit(limit))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	views := make([]CommentView, 0, len(rows))
	for i := range rows {
		views = append(views, NewCommentView(&rows[i]))
	}
	return views, nil
}

// Thread returns the newest comments for slug, up to the configured maximum, as a reply tree
func (s *Service) Thread(ctx context.Context, slug string) ([]*ThreadNode, error) {
	ctx, span := telemetry.StartSpan(ctx, "comments.thread")
	defer span.End()

	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, &ValidationError{Message: "missing slug"}
	}

	rows, err := s.store.ListThread(ctx, slug, s.cfg.ThreadMax)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	return BuildThread(rows), nil
}

// ParsePaging reads page and limit query values. Absent or non-numeric values take the defaults.
func ParsePaging(page, limit string) (int, int) {
	p, err := strconv.Atoi(strings.TrimSpace(page))
	if err != nil {
		p = DefaultPage
	}
	l, err := strconv.Atoi(strings.TrimSpace(limit))
	if err != nil {
		l = DefaultLimit
	}
	return ClampPage(p), ClampLimit(l)
}

// ClampPage keeps page within [1, MaxPage]
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	if page > MaxPage {
		return MaxPage
	}
	return page
}

// ClampLimit keeps limit within [1, MaxLimit]
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func parseParentID(raw string) (sql.NullInt64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return sql.NullInt64{}, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return sql.NullInt64{}, &ValidationError{Message: "invalid parentId"}
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

// truncate keeps the first n characters of s
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
