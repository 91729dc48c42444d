// Package classification wraps single calls to the classifier service with
// retry, backoff, pacing and timeout policy.
package classification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/metrics"
	"ProtagonismAnalyzer/internal/ports"
)

// Policy bounds how hard the client tries for a single pair.
type Policy struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	RateLimitBaseDelay time.Duration
	RateLimitMaxDelay  time.Duration
	// CallTimeout applies to each attempt on its own.
	CallTimeout time.Duration
	// MaxElapsed bounds the whole retry loop, waits included.
	MaxElapsed time.Duration
	Jitter     float64
	// MaxTextRunes truncates article text; zero keeps it whole.
	MaxTextRunes int
	// RequestsPerSecond paces attempts across all workers; zero disables pacing.
	RequestsPerSecond float64
}

// DefaultPolicy mirrors the defaults of the configuration layer.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:        4,
		BaseDelay:          time.Second,
		MaxDelay:           16 * time.Second,
		RateLimitBaseDelay: 5 * time.Second,
		RateLimitMaxDelay:  60 * time.Second,
		CallTimeout:        60 * time.Second,
		MaxElapsed:         3 * time.Minute,
		Jitter:             0.2,
		MaxTextRunes:       12000,
		RequestsPerSecond:  2,
	}
}

// Verdict is a successful classification.
type Verdict struct {
	Label    domain.Label
	Attempts int
}

// Client drives one ClassifierService. It is safe for concurrent use.
type Client struct {
	service  ports.ClassifierService
	policy   Policy
	limiter  *rate.Limiter
	metrics  *metrics.Recorder
	logger   *slog.Logger
	requests atomic.Int64
}

// NewClient wires a service with the policy. recorder and logger may be nil.
func NewClient(service ports.ClassifierService, policy Policy, recorder *metrics.Recorder, logger *slog.Logger) *Client {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if policy.RequestsPerSecond > 0 {
		limit = rate.Limit(policy.RequestsPerSecond)
	}

	return &Client{
		service: service,
		policy:  policy,
		limiter: rate.NewLimiter(limit, 1),
		metrics: recorder,
		logger:  logger,
	}
}

// Requests returns how many attempts were sent to the service.
func (c *Client) Requests() int64 {
	return c.requests.Load()
}

// Classify asks the service for one label, retrying transient failures.
// Failures are *domain.ClassifierError unless ctx was cancelled first.
func (c *Client) Classify(ctx context.Context, req ports.ClassifyRequest) (Verdict, error) {
	if c.service == nil {
		return Verdict{}, &domain.ClassifierError{Kind: domain.KindPermanent, Err: errors.New("classifier service is not configured")}
	}
	if req.ArticleText == "" {
		return Verdict{}, &domain.ClassifierError{Kind: domain.KindPermanent, Err: errors.New("empty article text")}
	}
	req.ArticleText = truncateRunes(req.ArticleText, c.policy.MaxTextRunes)

	start := time.Now()
	transient := newBackOff(c.policy.BaseDelay, c.policy.MaxDelay, c.policy.Jitter)
	limited := newBackOff(c.policy.RateLimitBaseDelay, c.policy.RateLimitMaxDelay, c.policy.Jitter)

	var lastErr error
	attempts := 0
	for attempts < c.policy.MaxAttempts {
		if err := c.limiter.Wait(ctx); err != nil {
			return Verdict{Attempts: attempts}, fmt.Errorf("wait for request slot: %w", err)
		}

		timeout, ok := c.attemptTimeout(start)
		if !ok {
			break
		}

		attempts++
		label, err := c.attempt(ctx, req, timeout)
		if err == nil {
			return Verdict{Label: label, Attempts: attempts}, nil
		}
		lastErr = err

		retryable, rateLimited, advised := classifyFailure(err)
		c.logger.Warn("classifier attempt failed",
			"article_id", req.ArticleID,
			"brand", req.Brand,
			"attempt", attempts,
			"retryable", retryable,
			"rate_limited", rateLimited,
			"error", err)

		if !retryable {
			return Verdict{Attempts: attempts}, &domain.ClassifierError{Kind: domain.KindPermanent, Attempts: attempts, Err: err}
		}
		if attempts >= c.policy.MaxAttempts {
			break
		}

		wait := transient.NextBackOff()
		cause := "transient"
		if rateLimited {
			cause = "rate_limited"
			wait = limited.NextBackOff()
			if advised > wait {
				wait = advised
			}
		}

		if c.policy.MaxElapsed > 0 && time.Since(start)+wait >= c.policy.MaxElapsed {
			c.logger.Warn("classifier retry budget exhausted",
				"article_id", req.ArticleID,
				"brand", req.Brand,
				"elapsed", time.Since(start),
				"next_wait", wait)
			break
		}

		c.metrics.ObserveRetry(cause)
		if err := sleep(ctx, wait); err != nil {
			return Verdict{Attempts: attempts}, fmt.Errorf("retry wait: %w", err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry budget exhausted before first attempt")
	}
	return Verdict{Attempts: attempts}, &domain.ClassifierError{Kind: domain.KindExhausted, Attempts: attempts, Err: lastErr}
}

// attempt issues one request. In-flight requests are detached from run
// cancellation and end on their own timeout.
func (c *Client) attempt(ctx context.Context, req ports.ClassifyRequest, timeout time.Duration) (domain.Label, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	detached := context.WithoutCancel(ctx)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(detached, timeout)
	} else {
		callCtx, cancel = context.WithCancel(detached)
	}
	defer cancel()

	c.requests.Add(1)
	began := time.Now()
	label, err := c.service.Classify(callCtx, req)
	c.metrics.ObserveRequest(outcome(err), time.Since(began).Seconds())
	if err != nil {
		return "", err
	}
	return label, nil
}

// attemptTimeout caps the per-call timeout by what is left of the retry budget.
func (c *Client) attemptTimeout(start time.Time) (time.Duration, bool) {
	timeout := c.policy.CallTimeout
	if c.policy.MaxElapsed <= 0 {
		return timeout, true
	}
	remaining := c.policy.MaxElapsed - time.Since(start)
	if remaining <= 0 {
		return 0, false
	}
	if timeout <= 0 || remaining < timeout {
		timeout = remaining
	}
	return timeout, true
}

func classifyFailure(err error) (retryable, rateLimited bool, advised time.Duration) {
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable(), svcErr.RateLimited, svcErr.RetryAfter
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, false, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, false, 0
	}
	return false, false, 0
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) {
		switch {
		case svcErr.RateLimited:
			return "rate_limited"
		case svcErr.Transient:
			return "transient"
		}
		return "permanent"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}

func newBackOff(initial, ceiling time.Duration, jitter float64) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = ceiling
	bo.Multiplier = 2
	bo.RandomizationFactor = jitter
	bo.Reset()
	return bo
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
