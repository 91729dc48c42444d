package source

import (
	"context"
	"fmt"
	"log/slog"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
	"ProtagonismAnalyzer/internal/scanner"
)

// StrategySource implements ArticleSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	logger   *slog.Logger
}

var _ ports.ArticleSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		logger:   log,
	}
}

// Fetch resolves the endpoint's scanner and runs it. Failures come back as
// *domain.SourceError.
func (s *StrategySource) Fetch(ctx context.Context, endpoint domain.Endpoint) ([]domain.Article, error) {
	if s.registry == nil {
		return nil, &domain.SourceError{Endpoint: endpoint.Name, Err: fmt.Errorf("scanner registry is not configured")}
	}

	s.debug("process endpoint", "endpoint", endpoint.Name, "kind", endpoint.Kind)
	strategy, err := s.registry.Resolve(endpoint.Kind)
	if err != nil {
		return nil, &domain.SourceError{Endpoint: endpoint.Name, Err: err}
	}

	results, err := strategy.Scan(ctx, endpoint)
	if err != nil {
		return nil, &domain.SourceError{Endpoint: endpoint.Name, Err: err}
	}

	for i := range results {
		if results[i].Source == "" {
			results[i].Source = endpoint.Name
		}
	}
	s.debug("endpoint produced articles", "endpoint", endpoint.Name, "count", len(results))
	return results, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
