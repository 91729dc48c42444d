package scanner

import (
	"context"
	"fmt"

	"ProtagonismAnalyzer/internal/domain"
)

// DefaultKind is used for endpoints that do not name a kind.
const DefaultKind = "brandapi"

// Scanner fetches articles for one endpoint kind (brand news API, etc.).
type Scanner interface {
	Kind() string
	Scan(ctx context.Context, endpoint domain.Endpoint) ([]domain.Article, error)
}

// Registry keeps a mapping from endpoint kinds to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds a registry holding the given scanners.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{scanners: map[string]Scanner{}}
	for _, s := range scanners {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Kind()] = scanner
}

// Resolve returns the scanner for kind; an empty kind means DefaultKind.
func (r *Registry) Resolve(kind string) (Scanner, error) {
	if kind == "" {
		kind = DefaultKind
	}
	if scanner, ok := r.scanners[kind]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered", kind)
}
