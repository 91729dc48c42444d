package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProtagonismAnalyzer/internal/config"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *DeepSeekClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewDeepSeekClient(config.ClassifierConfig{
		Endpoint:    srv.URL + "/v1",
		Model:       "deepseek-chat",
		APIKey:      "sk-test",
		Temperature: 0.1,
	}, srv.Client())
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":     "cmpl-1",
		"object": "chat.completion",
		"model":  "deepseek-chat",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func classifyRequest() ports.ClassifyRequest {
	return ports.ClassifyRequest{
		ArticleID:   "1",
		ArticleText: "Título: Bradesco lucra\n\nConteúdo: O Bradesco anunciou.",
		Brand:       "Bradesco",
		Hints:       []string{"Ágora", "Bradesco Asset"},
	}
}

func TestDeepSeekClassify(t *testing.T) {
	t.Parallel()

	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("Nível 2:"))
	})

	label, err := client.Classify(context.Background(), classifyRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.LabelContent, label)

	assert.Equal(t, "deepseek-chat", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, `"Bradesco"`)
	assert.Contains(t, got.Messages[1].Content,
		"VERIFICAÇÃO ESPECÍFICA: Os seguintes termos específicos foram encontrados: Ágora, Bradesco Asset. Classifique no mínimo como Citação.")
	assert.Contains(t, got.Messages[1].Content, "O Bradesco anunciou.")
}

func TestDeepSeekRateLimitCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	})

	_, err := client.Classify(context.Background(), classifyRequest())
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.RateLimited)
	assert.Equal(t, 7*time.Second, svcErr.RetryAfter)
	assert.Equal(t, http.StatusTooManyRequests, svcErr.StatusCode)
}

func TestDeepSeekMapsStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		transient bool
	}{
		{status: http.StatusBadGateway, transient: true},
		{status: http.StatusUnauthorized, transient: false},
		{status: http.StatusBadRequest, transient: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
			})
			_, err := client.Classify(context.Background(), classifyRequest())
			var svcErr *domain.ServiceError
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tt.transient, svcErr.Retryable())
			assert.False(t, svcErr.RateLimited)
		})
	}
}

func TestDeepSeekRejectsUnparseableAnswer(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("Talvez"))
	})

	_, err := client.Classify(context.Background(), classifyRequest())
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.False(t, svcErr.Retryable())
}

func TestUserPromptOmitsCheckWithoutHints(t *testing.T) {
	t.Parallel()

	req := classifyRequest()
	req.Hints = nil
	assert.NotContains(t, userPrompt(req), "VERIFICAÇÃO ESPECÍFICA")
}
