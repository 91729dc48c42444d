package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies classifier failures.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
	KindExhausted ErrorKind = "exhausted"
)

// ServiceError is returned by a ClassifierService.
type ServiceError struct {
	RateLimited bool
	Transient   bool
	// RetryAfter is the server-advised delay, zero when absent.
	RetryAfter time.Duration
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	kind := "permanent"
	switch {
	case e.RateLimited:
		kind = "rate limited"
	case e.Transient:
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("classifier service %s (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("classifier service %s: %v", kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Retryable reports whether the failure may go away on its own.
func (e *ServiceError) Retryable() bool {
	return e.RateLimited || e.Transient
}

// StatusError classifies an HTTP status: 429 is a rate limit, 408 and 5xx
// are transient, anything else is permanent.
func StatusError(status int, retryAfter time.Duration, err error) *ServiceError {
	return &ServiceError{
		RateLimited: status == http.StatusTooManyRequests,
		Transient:   status == http.StatusRequestTimeout || status >= http.StatusInternalServerError,
		RetryAfter:  retryAfter,
		StatusCode:  status,
		Err:         err,
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// ClassifierError is the outcome of a failed Classification Client call.
type ClassifierError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classify %s after %d attempt(s): %v", e.Kind, e.Attempts, e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// SourceError records a failed endpoint fetch.
type SourceError struct {
	Endpoint string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Endpoint, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// RejectReason names a consolidation validation rule.
type RejectReason string

const (
	RejectMissingID     RejectReason = "missing_id"
	RejectMissingURLs   RejectReason = "missing_urls"
	RejectMissingTitle  RejectReason = "missing_title"
	RejectNoUsableLabel RejectReason = "no_usable_label"
)

// ValidationError explains why a record was dropped.
type ValidationError struct {
	ArticleID string
	Reason    RejectReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %q rejected: %s", e.ArticleID, e.Reason)
}

// AbortReason names why a run produced no report.
type AbortReason string

const (
	AbortThreshold       AbortReason = "threshold_exceeded"
	AbortNoArticles      AbortReason = "no_articles"
	AbortNoUsableRecords AbortReason = "no_usable_records"
	AbortCancelled       AbortReason = "cancelled"
)

// RunAbortError halts a run before any report is written.
type RunAbortError struct {
	Reason AbortReason
	Err    error
}

func (e *RunAbortError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("run aborted: %s", e.Reason)
	}
	return fmt.Sprintf("run aborted: %s: %v", e.Reason, e.Err)
}

func (e *RunAbortError) Unwrap() error { return e.Err }

// IsRunAbort reports whether err is a RunAbortError and returns it.
func IsRunAbort(err error) (*RunAbortError, bool) {
	var abort *RunAbortError
	if errors.As(err, &abort) {
		return abort, true
	}
	return nil, false
}
