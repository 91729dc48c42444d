package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

// Client talks to a self-hosted classifier service that answers
// {text, brand} with {label}.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ClassifierService = (*Client)(nil)

// NewClient creates a reusable HTTP client. Timeouts come from the caller's context.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

type classifyPayload struct {
	ArticleID string   `json:"articleId"`
	Text      string   `json:"text"`
	Brand     string   `json:"brand"`
	Hints     []string `json:"hints,omitempty"`
}

type classifyResponse struct {
	Label string `json:"label"`
}

// Classify sends one pair to the service.
func (c *Client) Classify(ctx context.Context, req ports.ClassifyRequest) (domain.Label, error) {
	var resp classifyResponse
	err := c.post(ctx, "/classify", classifyPayload{
		ArticleID: req.ArticleID,
		Text:      req.ArticleText,
		Brand:     req.Brand,
		Hints:     req.Hints,
	}, &resp)
	if err != nil {
		return "", err
	}

	label, ok := domain.ParseLabel(resp.Label)
	if !ok {
		return "", &domain.ServiceError{Err: fmt.Errorf("unknown label %q", resp.Label)}
	}
	return label, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &domain.ServiceError{Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return &domain.ServiceError{Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryAfter := domain.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return domain.StatusError(resp.StatusCode, retryAfter,
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &domain.ServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func transportError(err error) error {
	wrapped := fmt.Errorf("do request: %w", err)
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.ServiceError{Transient: true, Err: wrapped}
	}
	return wrapped
}
