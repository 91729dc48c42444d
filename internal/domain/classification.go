package domain

import (
	"sort"
	"strings"
	"time"
)

// Label is the protagonism level of a brand in an article.
type Label string

const (
	LabelDedicated    Label = "dedicated"
	LabelContent      Label = "content"
	LabelCitation     Label = "citation"
	LabelUnclassified Label = "unclassified"
	LabelFailed       Label = "failed"
	// LabelNotEvaluated marks a consolidated slot that never received a result.
	LabelNotEvaluated Label = "not_evaluated"
)

// Usable reports whether the label carries signal for the report.
func (l Label) Usable() bool {
	switch l {
	case LabelDedicated, LabelContent, LabelCitation:
		return true
	default:
		return false
	}
}

// Display renders the label the way the bulk import expects it.
func (l Label) Display() string {
	switch l {
	case LabelDedicated:
		return "Dedicada"
	case LabelContent:
		return "Conteúdo"
	case LabelCitation:
		return "Citação"
	default:
		return ""
	}
}

// ResultOrigin tells which rule produced a classification result.
type ResultOrigin string

const (
	OriginClassifier ResultOrigin = "classifier"
	OriginTitle      ResultOrigin = "title"
	OriginChannel    ResultOrigin = "channel_filter"
	OriginNoText     ResultOrigin = "missing_text"
	OriginCorrection ResultOrigin = "mention_correction"
)

// PairKey identifies one (article, brand) pair.
type PairKey struct {
	ArticleID string
	Brand     string
}

// ClassificationResult is the terminal outcome for one pair.
type ClassificationResult struct {
	Key          PairKey
	Label        Label
	Origin       ResultOrigin
	Reason       string
	Occurrences  int
	AttemptedAt  time.Time
	AttemptCount int
}

// ResultSet holds at most one result per pair. It is not safe for concurrent use.
type ResultSet struct {
	results map[PairKey]ClassificationResult
}

// NewResultSet builds an empty set.
func NewResultSet() *ResultSet {
	return &ResultSet{results: map[PairKey]ClassificationResult{}}
}

// Put records res unless the pair already holds a non-Failed label.
// It reports whether the set changed.
func (s *ResultSet) Put(res ClassificationResult) bool {
	if s.results == nil {
		s.results = map[PairKey]ClassificationResult{}
	}
	if existing, ok := s.results[res.Key]; ok && existing.Label != LabelFailed {
		return false
	}
	s.results[res.Key] = res
	return true
}

// Get returns the result for a pair.
func (s *ResultSet) Get(key PairKey) (ClassificationResult, bool) {
	if s == nil {
		return ClassificationResult{}, false
	}
	res, ok := s.results[key]
	return res, ok
}

// Settled reports whether the pair holds a terminal non-Failed label.
func (s *ResultSet) Settled(key PairKey) bool {
	res, ok := s.Get(key)
	return ok && res.Label != LabelFailed
}

// Len returns the number of recorded pairs.
func (s *ResultSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.results)
}

// All returns every result ordered by article ID then brand.
func (s *ResultSet) All() []ClassificationResult {
	if s == nil {
		return nil
	}
	out := make([]ClassificationResult, 0, len(s.results))
	for _, res := range s.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ArticleID != out[j].Key.ArticleID {
			return out[i].Key.ArticleID < out[j].Key.ArticleID
		}
		return out[i].Key.Brand < out[j].Key.Brand
	})
	return out
}

// ParseLabel reads a classifier answer. It accepts the canonical label
// names, the display names and the "Nível N" answers of the LLM prompt.
func ParseLabel(answer string) (Label, bool) {
	s := strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(answer), `"'.:`)))
	s = strings.TrimSpace(strings.TrimSuffix(s, ":"))
	switch {
	case s == "":
		return "", false
	case strings.Contains(s, "nenhum"), s == string(LabelUnclassified):
		return LabelUnclassified, true
	case strings.HasPrefix(s, "nível 1"), strings.HasPrefix(s, "nivel 1"), s == "dedicada", s == string(LabelDedicated):
		return LabelDedicated, true
	case strings.HasPrefix(s, "nível 2"), strings.HasPrefix(s, "nivel 2"), s == "conteúdo", s == "conteudo", s == string(LabelContent):
		return LabelContent, true
	case strings.HasPrefix(s, "nível 3"), strings.HasPrefix(s, "nivel 3"), s == "citação", s == "citacao", s == string(LabelCitation):
		return LabelCitation, true
	}
	return "", false
}
