// Package turnstile verifies bot-challenge tokens against Cloudflare Turnstile.
package turnstile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steemit/commentd/pkg/config"
	"github.com/steemit/commentd/pkg/logging"
	"github.com/steemit/commentd/pkg/telemetry"
)

// Verifier decides whether a challenge token is genuine. Implementations never fail outward;
// every error is a negative verdict.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) bool
}

// New returns the verifier selected by cfg.Mode
func New(cfg *config.TurnstileConfig) (Verifier, error) {
	logger := logging.WithComponent("turnstile")

	switch cfg.Mode {
	case config.TurnstileModeRemote:
		logger.Info("Bot verification enabled", zap.String("mode", cfg.Mode), zap.String("url", cfg.VerifyURL))
		return NewRemoteVerifier(cfg), nil
	case config.TurnstileModeBypass:
		logger.Warn("Bot verification bypassed, every token is accepted", zap.String("mode", cfg.Mode))
		return AlwaysSucceed{}, nil
	default:
		return nil, fmt.Errorf("unknown turnstile mode %q", cfg.Mode)
	}
}

// AlwaysSucceed accepts every token. For local development only.
type AlwaysSucceed struct{}

// Verify implements Verifier
func (AlwaysSucceed) Verify(context.Context, string, string) bool {
	return true
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// RemoteVerifier checks tokens with the siteverify endpoint
type RemoteVerifier struct {
	secret    string
	verifyURL string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewRemoteVerifier creates a verifier. Outbound calls are throttled to cfg.RPS with cfg.Burst.
func NewRemoteVerifier(cfg *config.TurnstileConfig) *RemoteVerifier {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RemoteVerifier{
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
		timeout:   cfg.Timeout,
		client:    &http.Client{},
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logging.WithComponent("turnstile"),
	}
}

// Verify implements Verifier
func (v *RemoteVerifier) Verify(ctx context.Context, token, remoteIP string) bool {
	if v.secret == "" || token == "" {
		return false
	}

	ctx, span := telemetry.StartSpan(ctx, "turnstile.verify")
	defer span.End()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	if err := v.limiter.Wait(ctx); err != nil {
		v.logger.Warn("Verification throttled", zap.Error(err))
		return false
	}

	ok, err := v.siteverify(ctx, token, remoteIP)
	if err != nil {
		span.RecordError(err)
		v.logger.Warn("Verification request failed", zap.Error(err))
		return false
	}
	return ok
}

func (v *RemoteVerifier) siteverify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to decode siteverify response: %w", err)
	}

	if !out.Success {
		v.logger.Debug("Token rejected", zap.Strings("error_codes", out.ErrorCodes))
	}
	return out.Success, nil
}
