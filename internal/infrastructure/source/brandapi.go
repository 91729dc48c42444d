package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"ProtagonismAnalyzer/internal/config"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/scanner"
)

// BrandAPIScanner posts an endpoint's payload and decodes the brand news array.
type BrandAPIScanner struct {
	client     *http.Client
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

var _ scanner.Scanner = (*BrandAPIScanner)(nil)

// NewBrandAPIScanner wires an HTTP client; a nil client gets cfg.Timeout.
func NewBrandAPIScanner(client *http.Client, cfg config.SourceConfig, logger *slog.Logger) *BrandAPIScanner {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BrandAPIScanner{
		client:     client,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
		now:        time.Now,
	}
}

// Kind identifies the strategy inside the registry.
func (b *BrandAPIScanner) Kind() string {
	return scanner.DefaultKind
}

// record mirrors one item of the API response.
type record struct {
	ID              flexString `json:"Id"`
	UrlVisualizacao string     `json:"UrlVisualizacao"`
	UrlOriginal     string     `json:"UrlOriginal"`
	Titulo          string     `json:"Titulo"`
	Conteudo        string     `json:"Conteudo"`
	IdVeiculo       flexString `json:"IdVeiculo"`
	Canais          flexString `json:"Canais"`
}

// Scan fetches one endpoint. Only HTTP 500 is retried, after a fixed delay.
func (b *BrandAPIScanner) Scan(ctx context.Context, endpoint domain.Endpoint) ([]domain.Article, error) {
	payload := endpoint.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	attempt := 0
	operation := func() ([]record, error) {
		attempt++
		b.logger.Debug("brand api request", "endpoint", endpoint.Name, "attempt", attempt)
		records, status, err := b.post(ctx, endpoint, payload)
		if err == nil {
			return records, nil
		}
		if status == http.StatusInternalServerError {
			b.logger.Warn("brand api returned 500, retrying",
				"endpoint", endpoint.Name,
				"attempt", attempt,
				"delay", b.retryDelay)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	records, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(b.retryDelay)),
		backoff.WithMaxTries(uint(b.retries+1)),
	)
	if err != nil {
		return nil, err
	}

	collected := b.now()
	articles := make([]domain.Article, 0, len(records))
	for _, r := range records {
		articles = append(articles, domain.Article{
			ID:          strings.TrimSpace(string(r.ID)),
			ViewURL:     strings.TrimSpace(r.UrlVisualizacao),
			OriginalURL: strings.TrimSpace(r.UrlOriginal),
			Title:       cleanTitle(r.Titulo),
			Body:        bodyText(r.Conteudo),
			OutletID:    string(r.IdVeiculo),
			Channels:    tidyChannels(string(r.Canais)),
			Source:      endpoint.Name,
			CollectedAt: collected,
		})
	}
	b.logger.Info("brand api fetched", "endpoint", endpoint.Name, "records", len(articles))
	return articles, nil
}

func (b *BrandAPIScanner) post(ctx context.Context, endpoint domain.Endpoint, payload []byte) ([]record, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range endpoint.Headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var records []record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return records, resp.StatusCode, nil
}

// flexString accepts JSON strings, numbers, null and string arrays.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*f = ""
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	case trimmed[0] == '[':
		var items []flexString
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, string(it))
		}
		*f = flexString(strings.Join(parts, ", "))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return errors.New("expected string, number or array")
	}
	*f = flexString(n.String())
	return nil
}
