package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

func TestClassifyDecodesLabel(t *testing.T) {
	t.Parallel()

	var got classifyPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/classify", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(classifyResponse{Label: "Citação"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "key", srv.Client())
	label, err := client.Classify(context.Background(), ports.ClassifyRequest{
		ArticleID: "9", ArticleText: "texto", Brand: "Itaú", Hints: []string{"Itaú BBA"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LabelCitation, label)
	assert.Equal(t, classifyPayload{ArticleID: "9", Text: "texto", Brand: "Itaú", Hints: []string{"Itaú BBA"}}, got)
}

func TestClassifyReportsRateLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", srv.Client()).Classify(context.Background(), ports.ClassifyRequest{ArticleText: "x", Brand: "Itaú"})
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.RateLimited)
	assert.Equal(t, 3*time.Second, svcErr.RetryAfter)
}

func TestClassifyRejectsUnknownLabel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(classifyResponse{Label: "maybe"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", srv.Client()).Classify(context.Background(), ports.ClassifyRequest{ArticleText: "x", Brand: "Itaú"})
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.False(t, svcErr.Retryable())
}

func TestClassifyTimeoutIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, "", srv.Client()).Classify(ctx, ports.ClassifyRequest{ArticleText: "x", Brand: "Itaú"})
	var svcErr *domain.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.True(t, svcErr.Transient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
