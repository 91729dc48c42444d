// Package protagonism obtains one terminal classification result for every
// (article, brand) pair of a run.
package protagonism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ProtagonismAnalyzer/internal/classification"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/metrics"
	"ProtagonismAnalyzer/internal/ports"
)

const (
	// ReasonNotInChannels marks pairs skipped because the article's channels do not name the brand.
	ReasonNotInChannels = "brand_not_in_channels"
	// ReasonNotDispatched marks pairs the run stopped before sending.
	ReasonNotDispatched = "not dispatched: run stopped"
)

// PairClient classifies a single pair; *classification.Client satisfies it.
type PairClient interface {
	Classify(ctx context.Context, req ports.ClassifyRequest) (classification.Verdict, error)
}

var _ PairClient = (*classification.Client)(nil)

// Options tunes the run. Zero FanOut means 1; an empty FailureBasis means
// domain.BasisDispatched.
type Options struct {
	FanOut int
	// FailureThreshold aborts the run when the failure rate is strictly greater.
	FailureThreshold  float64
	FailureBasis      domain.FailureBasis
	TitleRule         bool
	ChannelFilter     bool
	MentionCorrection bool
}

// Outcome is what a classification run produced. Dispatched counts every pair
// routed to the classifier; Undispatched is the part of it the run stopped
// before sending. Failed counts only pairs the classifier actually failed.
type Outcome struct {
	Results         *domain.ResultSet
	Total           int
	Dispatched      int
	Undispatched    int
	AutoResolved    int
	Corrected       int
	Failed          int
	Reused          int
	Basis           domain.FailureBasis
	PartiallyFailed bool
}

// FailureRate is failed pairs over the denominator Basis selects.
func (o Outcome) FailureRate() float64 {
	return o.Basis.Rate(o.Failed, o.Dispatched, o.Total)
}

// Classifier drives a PairClient over every pair with bounded fan-out.
type Classifier struct {
	client  PairClient
	brands  []domain.Brand
	opts    Options
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewClassifier builds a classifier for the given brands.
func NewClassifier(client PairClient, brands []domain.Brand, opts Options, recorder *metrics.Recorder, logger *slog.Logger) *Classifier {
	if opts.FanOut <= 0 {
		opts.FanOut = 1
	}
	if opts.FailureBasis == "" {
		opts.FailureBasis = domain.BasisDispatched
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Classifier{
		client:  client,
		brands:  brands,
		opts:    opts,
		metrics: recorder,
		logger:  logger,
		now:     time.Now,
	}
}

type job struct {
	article domain.Article
	brand   domain.Brand
	hints   []string
}

// Run classifies every pair of articles × brands. Pairs already settled in
// prior are reused without a new request. The returned error is a
// *domain.RunAbortError when the failure threshold is breached or ctx is
// cancelled; the Outcome is filled in either case.
func (c *Classifier) Run(ctx context.Context, articles []domain.Article, prior *domain.ResultSet) (Outcome, error) {
	unique, _ := domain.MergeByID(articles)

	out := Outcome{Results: domain.NewResultSet(), Basis: c.opts.FailureBasis}
	var jobs []job
	for _, art := range unique {
		if strings.TrimSpace(art.ID) == "" {
			continue
		}
		for _, brand := range c.brands {
			out.Total++
			key := domain.PairKey{ArticleID: art.ID, Brand: brand.Name}
			if prev, ok := prior.Get(key); ok && prior.Settled(key) {
				out.Results.Put(prev)
				out.Reused++
				continue
			}
			if res, ok := c.resolveLocally(art, brand); ok {
				c.record(&out, art, brand, res, nil)
				out.AutoResolved++
				continue
			}
			jobs = append(jobs, job{article: art, brand: brand, hints: ContentHints(art, brand)})
		}
	}

	out.Dispatched = len(jobs)
	c.logger.Info("classification started",
		"pairs", out.Total,
		"dispatch", out.Dispatched,
		"auto_resolved", out.AutoResolved,
		"reused", out.Reused,
		"fan_out", c.opts.FanOut)

	breached, err := c.dispatch(ctx, jobs, &out)
	out.PartiallyFailed = out.Failed > 0 || out.Undispatched > 0

	c.logger.Info("classification finished",
		"dispatched", out.Dispatched,
		"undispatched", out.Undispatched,
		"failed", out.Failed,
		"corrected", out.Corrected,
		"failure_rate", out.FailureRate(),
		"failure_basis", out.Basis)

	if err != nil {
		return out, err
	}
	if denom := c.denominator(out.Dispatched, out.Total); breached || c.exceeds(out.Failed, denom) {
		return out, &domain.RunAbortError{
			Reason: domain.AbortThreshold,
			Err: fmt.Errorf("%d of %d %s pairs failed, threshold %.2f",
				out.Failed, denom, out.Basis, c.opts.FailureThreshold),
		}
	}
	return out, nil
}

// dispatch runs the jobs and collects their results on the calling goroutine.
func (c *Classifier) dispatch(ctx context.Context, jobs []job, out *Outcome) (bool, error) {
	if len(jobs) == 0 {
		return false, nil
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	type result struct {
		job  job
		res  domain.ClassificationResult
		sent bool
	}
	results := make(chan result, len(jobs))
	limit := c.denominator(len(jobs), out.Total)

	var failed atomic.Int64
	var breached atomic.Bool

	g := new(errgroup.Group)
	g.SetLimit(c.opts.FanOut)
	go func() {
		for _, j := range jobs {
			if runCtx.Err() != nil {
				break
			}
			g.Go(func() error {
				res, sent := c.classifyPair(runCtx, j)
				if sent && res.Label == domain.LabelFailed {
					if n := failed.Add(1); c.exceeds(int(n), limit) && breached.CompareAndSwap(false, true) {
						c.logger.Warn("failure threshold breached, stopping dispatch",
							"failed", n,
							"of", limit,
							"basis", c.opts.FailureBasis)
						stop()
					}
				}
				results <- result{job: j, res: res, sent: sent}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	for r := range results {
		switch {
		case !r.sent:
			out.Undispatched++
		case r.res.Label == domain.LabelFailed:
			out.Failed++
		}
		c.record(out, r.job.article, r.job.brand, r.res, r.job.hints)
	}

	// Pairs never started still need a terminal slot.
	for _, j := range jobs {
		key := domain.PairKey{ArticleID: j.article.ID, Brand: j.brand.Name}
		if _, ok := out.Results.Get(key); ok {
			continue
		}
		out.Undispatched++
		c.record(out, j.article, j.brand, domain.ClassificationResult{
			Key:         key,
			Label:       domain.LabelFailed,
			Origin:      domain.OriginClassifier,
			Reason:      ReasonNotDispatched,
			AttemptedAt: c.now(),
		}, nil)
	}

	if err := ctx.Err(); err != nil {
		return false, &domain.RunAbortError{Reason: domain.AbortCancelled, Err: err}
	}
	return breached.Load(), nil
}

// classifyPair reports sent=false when the run stopped before the request went out.
func (c *Classifier) classifyPair(ctx context.Context, j job) (domain.ClassificationResult, bool) {
	key := domain.PairKey{ArticleID: j.article.ID, Brand: j.brand.Name}
	res := domain.ClassificationResult{
		Key:         key,
		Origin:      domain.OriginClassifier,
		AttemptedAt: c.now(),
	}
	if ctx.Err() != nil {
		res.Label = domain.LabelFailed
		res.Reason = ReasonNotDispatched
		return res, false
	}

	verdict, err := c.client.Classify(ctx, ports.ClassifyRequest{
		ArticleID:   j.article.ID,
		ArticleText: j.article.ClassificationText(),
		Brand:       j.brand.Name,
		Hints:       j.hints,
	})
	res.AttemptCount = verdict.Attempts
	if err != nil {
		res.Label = domain.LabelFailed
		res.Reason = err.Error()
		var clsErr *domain.ClassifierError
		if errors.As(err, &clsErr) {
			res.AttemptCount = clsErr.Attempts
		}
		c.logger.Warn("pair classification failed",
			"article_id", key.ArticleID,
			"brand", key.Brand,
			"attempts", res.AttemptCount,
			"error", err)
		return res, true
	}
	res.Label = verdict.Label
	return res, true
}

// resolveLocally applies the rules that settle a pair without the service.
func (c *Classifier) resolveLocally(art domain.Article, brand domain.Brand) (domain.ClassificationResult, bool) {
	res := domain.ClassificationResult{
		Key:         domain.PairKey{ArticleID: art.ID, Brand: brand.Name},
		AttemptedAt: c.now(),
	}
	switch {
	case c.opts.ChannelFilter && strings.TrimSpace(art.Channels) != "" && !InChannels(art.Channels, brand):
		res.Label = domain.LabelUnclassified
		res.Origin = domain.OriginChannel
		res.Reason = ReasonNotInChannels
	case c.opts.TitleRule && Mentions(art.Title, brand.Name):
		res.Label = domain.LabelDedicated
		res.Origin = domain.OriginTitle
	case !art.HasText():
		res.Label = domain.LabelUnclassified
		res.Origin = domain.OriginNoText
		res.Reason = "missing text"
	default:
		return domain.ClassificationResult{}, false
	}
	return res, true
}

// record finalises a result and stores it. Only the collector goroutine calls it.
func (c *Classifier) record(out *Outcome, art domain.Article, brand domain.Brand, res domain.ClassificationResult, hints []string) {
	if res.Label == domain.LabelUnclassified && c.shouldCorrect(art, brand, hints) {
		res.Label = domain.LabelCitation
		res.Origin = domain.OriginCorrection
		out.Corrected++
	}
	if res.Label.Usable() {
		res.Occurrences = CountMentions(art.Title+"\n"+art.Text(), brand.Name)
	}
	out.Results.Put(res)
	c.metrics.ObserveResult(res)
}

// shouldCorrect also applies to locally resolved pairs: a brand named in the
// text is at least a Citation whatever the channels say.
func (c *Classifier) shouldCorrect(art domain.Article, brand domain.Brand, hints []string) bool {
	if len(hints) > 0 {
		return true
	}
	return c.opts.MentionCorrection && Mentions(art.Title+"\n"+art.Text(), brand.Name)
}

func (c *Classifier) denominator(dispatched, total int) int {
	return c.opts.FailureBasis.Denominator(dispatched, total)
}

func (c *Classifier) exceeds(failed, denom int) bool {
	if denom == 0 || failed == 0 {
		return false
	}
	return float64(failed)/float64(denom) > c.opts.FailureThreshold
}
