package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"ProtagonismAnalyzer/internal/config"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

// DeepSeekClient implements ports.ClassifierService over the OpenAI-compatible
// chat completions API.
type DeepSeekClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
	temperature  float32
}

var _ ports.ClassifierService = (*DeepSeekClient)(nil)

// NewDeepSeekClient builds a client from configuration. The retry loop and
// per-call timeout live in the classification client, so the HTTP client
// carries no timeout of its own.
func NewDeepSeekClient(cfg config.ClassifierConfig, httpClient *http.Client) *DeepSeekClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	oc.HTTPClient = retryAfterDoer{base: httpClient}

	return &DeepSeekClient{
		client:       openai.NewClientWithConfig(oc),
		model:        cfg.Model,
		systemPrompt: systemPrompt(cfg.SystemPrompt),
		temperature:  cfg.Temperature,
	}
}

// Classify asks the model for one protagonism level.
func (c *DeepSeekClient) Classify(ctx context.Context, req ports.ClassifyRequest) (domain.Label, error) {
	hint := new(atomic.Int64)
	ctx = context.WithValue(ctx, retryAfterKey{}, hint)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	})
	if err != nil {
		return "", mapError(err, time.Duration(hint.Load()))
	}
	if len(resp.Choices) == 0 {
		return "", &domain.ServiceError{Err: errors.New("completion has no choices")}
	}

	answer := resp.Choices[0].Message.Content
	label, ok := domain.ParseLabel(answer)
	if !ok {
		return "", &domain.ServiceError{Err: fmt.Errorf("unparseable answer %q", answer)}
	}
	return label, nil
}

func mapError(err error, retryAfter time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return domain.StatusError(apiErr.HTTPStatusCode, retryAfter, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return domain.StatusError(reqErr.HTTPStatusCode, retryAfter, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &domain.ServiceError{Transient: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &domain.ServiceError{Transient: true, Err: err}
	}
	return err
}

type retryAfterKey struct{}

// retryAfterDoer records the Retry-After header of throttled responses in the
// request context, since go-openai errors do not expose headers.
type retryAfterDoer struct {
	base *http.Client
}

func (d retryAfterDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.base.Do(req)
	if err != nil {
		return resp, err
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if hint, ok := req.Context().Value(retryAfterKey{}).(*atomic.Int64); ok {
			hint.Store(int64(domain.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())))
		}
	}
	return resp, nil
}
