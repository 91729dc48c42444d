package ports

import (
	"context"
	"time"

	"ProtagonismAnalyzer/internal/domain"
)

// ArticleSource pulls raw articles for one configured endpoint.
type ArticleSource interface {
	Fetch(ctx context.Context, endpoint domain.Endpoint) ([]domain.Article, error)
}

// ClassifyRequest is one (article, brand) question for the classifier.
type ClassifyRequest struct {
	ArticleID   string
	ArticleText string
	Brand       string
	// Hints are content-check terms found in the article; a non-empty list
	// means the answer must be at least a Citation. Services phrase them.
	Hints []string
}

// ClassifierService answers a single protagonism question.
// Failures should be *domain.ServiceError so callers can tell rate limits apart.
type ClassifierService interface {
	Classify(ctx context.Context, req ClassifyRequest) (domain.Label, error)
}

// ReportWriter renders the batch report and returns the files it wrote.
type ReportWriter interface {
	Write(ctx context.Context, report domain.BatchReport) ([]string, error)
}

// Notifier publishes run summaries to Telegram or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
