package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ProtagonismAnalyzer/internal/consolidate"
	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/metrics"
	"ProtagonismAnalyzer/internal/ports"
	"ProtagonismAnalyzer/internal/protagonism"
	"ProtagonismAnalyzer/internal/report"
)

// PairClassifier classifies every (article, brand) pair of a run;
// *protagonism.Classifier satisfies it.
type PairClassifier interface {
	Run(ctx context.Context, articles []domain.Article, prior *domain.ResultSet) (protagonism.Outcome, error)
}

var _ PairClassifier = (*protagonism.Classifier)(nil)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source       ports.ArticleSource
	Endpoints    []domain.Endpoint
	Classifier   PairClassifier
	Consolidator *consolidate.Consolidator
	Builder      *report.Builder
	Writer       ports.ReportWriter
	Notifier     ports.Notifier
	Metrics      *metrics.Recorder
	// PushgatewayURL and MetricsJob enable a metrics push at the end of each run.
	PushgatewayURL string
	MetricsJob     string
	Logger         *slog.Logger
}

// Pipeline implements the fetch, classify, consolidate and report workflow.
type Pipeline struct {
	source       ports.ArticleSource
	endpoints    []domain.Endpoint
	classifier   PairClassifier
	consolidator *consolidate.Consolidator
	builder      *report.Builder
	writer       ports.ReportWriter
	notifier     ports.Notifier
	metrics      *metrics.Recorder
	pushURL      string
	metricsJob   string
	logger       *slog.Logger
	now          func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:       deps.Source,
		endpoints:    deps.Endpoints,
		classifier:   deps.Classifier,
		consolidator: deps.Consolidator,
		builder:      deps.Builder,
		writer:       deps.Writer,
		notifier:     deps.Notifier,
		metrics:      deps.Metrics,
		pushURL:      deps.PushgatewayURL,
		metricsJob:   deps.MetricsJob,
		logger:       logger,
		now:          time.Now,
	}
}

// RunResult is what one execution leaves behind.
type RunResult struct {
	Summary domain.RunSummary
	// Results holds every pair result, so a retried run can pass it back as prior.
	Results *domain.ResultSet
}

// Run executes one batch. prior may be nil. The summary is always filled and
// published; a *domain.RunAbortError means no report was written.
func (p *Pipeline) Run(ctx context.Context, runID string, prior *domain.ResultSet) (RunResult, error) {
	log := p.logger.With("run_id", runID)
	result := RunResult{Summary: domain.RunSummary{RunID: runID, StartedAt: p.now()}}

	err := p.execute(ctx, log, &result, prior)

	s := &result.Summary
	s.FinishedAt = p.now()
	if abort, ok := domain.IsRunAbort(err); ok {
		s.Aborted = true
		s.AbortReason = abort.Reason
		log.Error("run aborted", "reason", abort.Reason, "error", err)
	} else if err != nil {
		log.Error("run failed", "error", err)
	} else {
		log.Info("run finished",
			"records", s.RecordsWritten,
			"rejected", s.RejectedTotal(),
			"partially_failed", s.PartiallyFailed,
			"files", s.Files)
	}

	p.finish(ctx, log, result.Summary)
	return result, err
}

func (p *Pipeline) execute(ctx context.Context, log *slog.Logger, result *RunResult, prior *domain.ResultSet) error {
	s := &result.Summary

	articles, err := p.collect(ctx, log, s)
	if err != nil {
		return err
	}
	if len(articles) == 0 {
		return &domain.RunAbortError{Reason: domain.AbortNoArticles}
	}

	outcome, err := p.classifier.Run(ctx, articles, prior)
	result.Results = outcome.Results
	s.PairsTotal = outcome.Total
	s.PairsDispatched = outcome.Dispatched
	s.PairsAutoResolved = outcome.AutoResolved
	s.PairsCorrected = outcome.Corrected
	s.PairsFailed = outcome.Failed
	s.PairsUndispatched = outcome.Undispatched
	s.FailureBasis = outcome.Basis
	s.PartiallyFailed = s.PartiallyFailed || outcome.PartiallyFailed
	if err != nil {
		return err
	}

	consolidated := p.consolidator.Consolidate(articles, outcome.Results)
	s.DuplicatesMerged = consolidated.DuplicatesMerged
	s.Rejected = consolidated.Rejected
	if len(consolidated.Records) == 0 {
		return &domain.RunAbortError{
			Reason: domain.AbortNoUsableRecords,
			Err:    fmt.Errorf("%d records rejected", s.RejectedTotal()),
		}
	}

	batch := p.builder.Build(s.RunID, consolidated.Records)
	if err := ctx.Err(); err != nil {
		return &domain.RunAbortError{Reason: domain.AbortCancelled, Err: err}
	}
	files, err := p.writer.Write(ctx, batch)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.RecordsWritten = len(batch.Rows)
	s.Files = files
	return nil
}

// collect fetches every endpoint in order. A failed endpoint is recorded and
// skipped; articles are stamped with their source and collection order.
func (p *Pipeline) collect(ctx context.Context, log *slog.Logger, s *domain.RunSummary) ([]domain.Article, error) {
	var articles []domain.Article
	for _, endpoint := range p.endpoints {
		if err := ctx.Err(); err != nil {
			return nil, &domain.RunAbortError{Reason: domain.AbortCancelled, Err: err}
		}

		fetched, err := p.source.Fetch(ctx, endpoint)
		if err != nil {
			var srcErr *domain.SourceError
			if !errors.As(err, &srcErr) {
				srcErr = &domain.SourceError{Endpoint: endpoint.Name, Err: err}
			}
			log.Warn("endpoint failed", "endpoint", endpoint.Name, "error", srcErr)
			s.EndpointsFailed = append(s.EndpointsFailed, endpoint.Name)
			s.PartiallyFailed = true
			continue
		}

		collectedAt := p.now()
		for _, art := range fetched {
			if art.Source == "" {
				art.Source = endpoint.Name
			}
			if art.CollectedAt.IsZero() {
				art.CollectedAt = collectedAt
			}
			art.Seq = len(articles)
			articles = append(articles, art)
		}
		log.Info("endpoint collected", "endpoint", endpoint.Name, "articles", len(fetched))
	}
	s.ArticlesFetched = len(articles)
	return articles, nil
}

// finish publishes the summary. Metrics and notification failures are logged only.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, summary domain.RunSummary) {
	p.metrics.ObserveSummary(summary)
	if p.pushURL != "" {
		if err := p.metrics.Push(p.pushURL, p.metricsJob); err != nil {
			log.Warn("metrics push failed", "error", err)
		}
	}

	if p.notifier == nil {
		return
	}
	// A cancelled run still reports why it stopped.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.notifier.PublishSummary(notifyCtx, summary); err != nil {
		log.Warn("summary notification failed", "error", err)
	}
}
