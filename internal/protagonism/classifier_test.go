package protagonism

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ProtagonismAnalyzer/internal/classification"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

type fakeClient struct {
	mu     sync.Mutex
	labels map[domain.PairKey]domain.Label
	fail   map[domain.PairKey]bool
	calls  []ports.ClassifyRequest
	inUse  atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func (f *fakeClient) Classify(ctx context.Context, req ports.ClassifyRequest) (classification.Verdict, error) {
	n := f.inUse.Add(1)
	defer f.inUse.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	key := domain.PairKey{ArticleID: req.ArticleID, Brand: req.Brand}
	if f.fail[key] {
		return classification.Verdict{}, &domain.ClassifierError{Kind: domain.KindExhausted, Attempts: 3, Err: errors.New("boom")}
	}
	if label, ok := f.labels[key]; ok {
		return classification.Verdict{Label: label, Attempts: 1}, nil
	}
	return classification.Verdict{Label: domain.LabelContent, Attempts: 1}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func brands(names ...string) []domain.Brand {
	out := make([]domain.Brand, len(names))
	for i, n := range names {
		out[i] = domain.Brand{Name: n}
	}
	return out
}

func article(id string) domain.Article {
	return domain.Article{
		ID:          id,
		ViewURL:     "https://view.example/" + id,
		OriginalURL: "https://news.example/" + id,
		Title:       "Mercado financeiro " + id,
		Body:        "Análise do setor bancário.",
	}
}

func TestRunRecordsOneResultPerPair(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	c := NewClassifier(client, brands("Itaú", "Bradesco", "Santander"), Options{FanOut: 4, FailureThreshold: 0.5}, nil, nil)

	articles := []domain.Article{article("1"), article("2"), article("2"), article("3")}
	out, err := c.Run(context.Background(), articles, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, out.Total)
	assert.Equal(t, 9, out.Dispatched)
	assert.Equal(t, 9, out.Results.Len())
	assert.Equal(t, 9, client.callCount())
	for _, res := range out.Results.All() {
		assert.Equal(t, domain.LabelContent, res.Label)
		assert.Equal(t, 1, res.AttemptCount)
	}
	assert.False(t, out.PartiallyFailed)
}

func TestRunRespectsFanOut(t *testing.T) {
	t.Parallel()

	client := &fakeClient{delay: 5 * time.Millisecond}
	c := NewClassifier(client, brands("Itaú", "Bradesco"), Options{FanOut: 2, FailureThreshold: 0.5}, nil, nil)

	var articles []domain.Article
	for i := range 6 {
		articles = append(articles, article(fmt.Sprint(i)))
	}
	_, err := c.Run(context.Background(), articles, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, client.peak.Load(), int32(2))
}

func TestRunIsIndependentOfFanOut(t *testing.T) {
	t.Parallel()

	labels := map[domain.PairKey]domain.Label{
		{ArticleID: "1", Brand: "Itaú"}:     domain.LabelDedicated,
		{ArticleID: "2", Brand: "Bradesco"}: domain.LabelCitation,
		{ArticleID: "3", Brand: "Itaú"}:     domain.LabelUnclassified,
	}
	var articles []domain.Article
	for i := 1; i <= 5; i++ {
		articles = append(articles, article(fmt.Sprint(i)))
	}

	run := func(fanOut int) []domain.ClassificationResult {
		c := NewClassifier(&fakeClient{labels: labels}, brands("Itaú", "Bradesco", "Santander"),
			Options{FanOut: fanOut, FailureThreshold: 0.5}, nil, nil)
		fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		c.now = func() time.Time { return fixed }
		out, err := c.Run(context.Background(), articles, nil)
		require.NoError(t, err)
		return out.Results.All()
	}

	assert.Equal(t, run(1), run(8))
}

func TestRunToleratesPartialFailure(t *testing.T) {
	t.Parallel()

	// 10 pairs, 4 failing: 40% stays under a 50% threshold.
	fail := map[domain.PairKey]bool{}
	var articles []domain.Article
	for i := range 10 {
		id := fmt.Sprint(i)
		articles = append(articles, article(id))
		if i < 4 {
			fail[domain.PairKey{ArticleID: id, Brand: "Itaú"}] = true
		}
	}

	c := NewClassifier(&fakeClient{fail: fail}, brands("Itaú"), Options{FanOut: 3, FailureThreshold: 0.5}, nil, nil)
	out, err := c.Run(context.Background(), articles, nil)
	require.NoError(t, err)
	assert.True(t, out.PartiallyFailed)
	assert.Equal(t, 4, out.Failed)
	assert.Equal(t, 10, out.Results.Len())

	res, ok := out.Results.Get(domain.PairKey{ArticleID: "0", Brand: "Itaú"})
	require.True(t, ok)
	assert.Equal(t, domain.LabelFailed, res.Label)
	assert.Equal(t, 3, res.AttemptCount)
}

func TestRunAbortsAboveFailureThreshold(t *testing.T) {
	t.Parallel()

	// 10 pairs, 6 failing: 60% breaches a 50% threshold.
	fail := map[domain.PairKey]bool{}
	var articles []domain.Article
	for i := range 10 {
		id := fmt.Sprint(i)
		articles = append(articles, article(id))
		if i < 6 {
			fail[domain.PairKey{ArticleID: id, Brand: "Itaú"}] = true
		}
	}

	client := &fakeClient{fail: fail}
	c := NewClassifier(client, brands("Itaú"), Options{FanOut: 1, FailureThreshold: 0.5}, nil, nil)
	out, err := c.Run(context.Background(), articles, nil)

	abort, ok := domain.IsRunAbort(err)
	require.True(t, ok)
	assert.Equal(t, domain.AbortThreshold, abort.Reason)
	// Dispatch stops once the breach is certain.
	assert.Equal(t, 6, client.callCount())
	assert.Equal(t, 10, out.Results.Len())
	assert.Equal(t, 6, out.Failed)
	assert.Equal(t, 4, out.Undispatched)
}

func TestRunCountsUnsentPairsApartFromFailures(t *testing.T) {
	t.Parallel()

	// 5 pairs, the first 3 failing: 3/5 breaches 50% and the last 2 are never sent.
	fail := map[domain.PairKey]bool{}
	var articles []domain.Article
	for i := range 5 {
		id := fmt.Sprint(i)
		articles = append(articles, article(id))
		if i < 3 {
			fail[domain.PairKey{ArticleID: id, Brand: "Itaú"}] = true
		}
	}

	client := &fakeClient{fail: fail}
	c := NewClassifier(client, brands("Itaú"), Options{FanOut: 1, FailureThreshold: 0.5}, nil, nil)
	out, err := c.Run(context.Background(), articles, nil)

	abort, ok := domain.IsRunAbort(err)
	require.True(t, ok)
	assert.Equal(t, domain.AbortThreshold, abort.Reason)
	assert.ErrorContains(t, err, "3 of 5 dispatched pairs failed")

	assert.Equal(t, 3, client.callCount())
	assert.Equal(t, 5, out.Dispatched)
	assert.Equal(t, 3, out.Failed)
	assert.Equal(t, 2, out.Undispatched)
	assert.InDelta(t, 0.6, out.FailureRate(), 1e-9)
	assert.True(t, out.PartiallyFailed)

	require.Equal(t, 5, out.Results.Len())
	for _, id := range []string{"3", "4"} {
		res, ok := out.Results.Get(domain.PairKey{ArticleID: id, Brand: "Itaú"})
		require.True(t, ok, id)
		assert.Equal(t, domain.LabelFailed, res.Label)
		assert.Equal(t, ReasonNotDispatched, res.Reason)
		assert.Zero(t, res.AttemptCount)
	}
}

func TestRunFailureBasis(t *testing.T) {
	t.Parallel()

	// 10 pairs: 5 settled by the title rule, 3 of the other 5 failing.
	// That is 30% of all pairs but 60% of the dispatched ones.
	fail := map[domain.PairKey]bool{}
	var articles []domain.Article
	for i := range 10 {
		id := fmt.Sprint(i)
		art := article(id)
		switch {
		case i < 5:
			art.Title = "Itaú amplia crédito " + id
		case i < 8:
			fail[domain.PairKey{ArticleID: id, Brand: "Itaú"}] = true
		}
		articles = append(articles, art)
	}

	tests := []struct {
		name      string
		basis     domain.FailureBasis
		wantAbort bool
		wantRate  float64
	}{
		{name: "default is dispatched", basis: "", wantAbort: true, wantRate: 0.6},
		{name: "dispatched", basis: domain.BasisDispatched, wantAbort: true, wantRate: 0.6},
		{name: "total", basis: domain.BasisTotal, wantAbort: false, wantRate: 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := NewClassifier(&fakeClient{fail: fail}, brands("Itaú"), Options{
				FanOut:           1,
				FailureThreshold: 0.5,
				FailureBasis:     tt.basis,
				TitleRule:        true,
			}, nil, nil)
			out, err := c.Run(context.Background(), articles, nil)

			assert.Equal(t, 10, out.Total)
			assert.Equal(t, 5, out.AutoResolved)
			assert.Equal(t, 5, out.Dispatched)
			assert.Equal(t, 3, out.Failed)
			assert.InDelta(t, tt.wantRate, out.FailureRate(), 1e-9)
			if !tt.wantAbort {
				require.NoError(t, err)
				assert.Equal(t, domain.BasisTotal, out.Basis)
				assert.Zero(t, out.Undispatched)
				return
			}
			abort, ok := domain.IsRunAbort(err)
			require.True(t, ok)
			assert.Equal(t, domain.AbortThreshold, abort.Reason)
			assert.Equal(t, domain.BasisDispatched, out.Basis)
		})
	}
}

func TestRunReusesSettledPriorResults(t *testing.T) {
	t.Parallel()

	prior := domain.NewResultSet()
	prior.Put(domain.ClassificationResult{Key: domain.PairKey{ArticleID: "1", Brand: "Itaú"}, Label: domain.LabelDedicated})
	prior.Put(domain.ClassificationResult{Key: domain.PairKey{ArticleID: "1", Brand: "Bradesco"}, Label: domain.LabelFailed})

	client := &fakeClient{}
	c := NewClassifier(client, brands("Itaú", "Bradesco"), Options{FanOut: 2, FailureThreshold: 0.5}, nil, nil)
	out, err := c.Run(context.Background(), []domain.Article{article("1")}, prior)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Reused)
	require.Equal(t, 1, client.callCount())
	assert.Equal(t, "Bradesco", client.calls[0].Brand)

	res, _ := out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Itaú"})
	assert.Equal(t, domain.LabelDedicated, res.Label)
	res, _ = out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Bradesco"})
	assert.Equal(t, domain.LabelContent, res.Label)
}

func TestRunResolvesLocalRules(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	bs := []domain.Brand{
		{Name: "Itaú"},
		{Name: "Bradesco", ChannelTerms: []string{"Ágora"}},
		{Name: "Santander"},
	}
	c := NewClassifier(client, bs, Options{
		FanOut:           2,
		FailureThreshold: 0.5,
		TitleRule:        true,
		ChannelFilter:    true,
	}, nil, nil)

	titled := article("1")
	titled.Title = "ITAU anuncia lucro recorde"
	titled.Body = "O Itaú e o Itaú BBA cresceram."
	titled.Channels = "Itaú; Ágora"

	empty := article("2")
	empty.Body = ""

	out, err := c.Run(context.Background(), []domain.Article{titled, empty}, nil)
	require.NoError(t, err)

	res, _ := out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Itaú"})
	assert.Equal(t, domain.LabelDedicated, res.Label)
	assert.Equal(t, domain.OriginTitle, res.Origin)
	assert.Equal(t, 3, res.Occurrences)

	res, _ = out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Santander"})
	assert.Equal(t, domain.LabelUnclassified, res.Label)
	assert.Equal(t, ReasonNotInChannels, res.Reason)

	res, _ = out.Results.Get(domain.PairKey{ArticleID: "2", Brand: "Bradesco"})
	assert.Equal(t, domain.LabelUnclassified, res.Label)
	assert.Equal(t, domain.OriginNoText, res.Origin)

	// Only article 1 × Bradesco reached the service.
	assert.Equal(t, 1, client.callCount())
	assert.Equal(t, 5, out.AutoResolved)
}

func TestRunCorrectsUnclassifiedMentions(t *testing.T) {
	t.Parallel()

	labels := map[domain.PairKey]domain.Label{
		{ArticleID: "1", Brand: "Bradesco"}: domain.LabelUnclassified,
		{ArticleID: "1", Brand: "Itaú"}:     domain.LabelUnclassified,
	}
	art := article("1")
	art.Body = "Clientes do Bradesco relataram instabilidade."

	c := NewClassifier(&fakeClient{labels: labels}, brands("Bradesco", "Itaú"),
		Options{FanOut: 1, FailureThreshold: 0.5, MentionCorrection: true}, nil, nil)
	out, err := c.Run(context.Background(), []domain.Article{art}, nil)
	require.NoError(t, err)

	res, _ := out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Bradesco"})
	assert.Equal(t, domain.LabelCitation, res.Label)
	assert.Equal(t, domain.OriginCorrection, res.Origin)
	assert.Equal(t, 1, res.Occurrences)

	res, _ = out.Results.Get(domain.PairKey{ArticleID: "1", Brand: "Itaú"})
	assert.Equal(t, domain.LabelUnclassified, res.Label)
	assert.Equal(t, 1, out.Corrected)
}

func TestRunSendsContentCheckHints(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	bs := []domain.Brand{{
		Name:          "Bradesco",
		ChannelTerms:  []string{"Ágora"},
		ContentChecks: []domain.ContentCheck{{Channel: "Ágora", Term: "Ágora"}},
	}}
	art := article("7")
	art.Body = "A corretora Ágora ampliou a oferta."
	art.Channels = "Ágora"

	c := NewClassifier(client, bs, Options{FanOut: 1, FailureThreshold: 0.5, ChannelFilter: true}, nil, nil)
	_, err := c.Run(context.Background(), []domain.Article{art}, nil)
	require.NoError(t, err)

	require.Equal(t, 1, client.callCount())
	assert.Equal(t, []string{"Ágora"}, client.calls[0].Hints, "services receive the matched terms, not prose")
	assert.Contains(t, client.calls[0].ArticleText, "Título: ")
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeClient{}
	c := NewClassifier(client, brands("Itaú"), Options{FanOut: 2, FailureThreshold: 0.5}, nil, nil)
	out, err := c.Run(ctx, []domain.Article{article("1"), article("2")}, nil)

	abort, ok := domain.IsRunAbort(err)
	require.True(t, ok)
	assert.Equal(t, domain.AbortCancelled, abort.Reason)
	assert.Equal(t, 0, client.callCount())
	assert.Equal(t, 2, out.Results.Len())
	assert.Equal(t, 2, out.Undispatched)
	assert.Zero(t, out.Failed)
}
