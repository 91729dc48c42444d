// Package consolidate merges raw articles with their classification results
// into validated records ready for reporting.
package consolidate

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"ProtagonismAnalyzer/internal/domain"
)

// Result is the consolidated record set of one run.
type Result struct {
	Records          []domain.ConsolidatedRecord
	Rejected         map[domain.RejectReason]int
	Rejections       []domain.ValidationError
	DuplicatesMerged int
}

// Consolidator is single-threaded; build one per run or reuse sequentially.
type Consolidator struct {
	brands []string
	logger *slog.Logger
}

// New returns a consolidator producing one slot per brand, in order.
func New(brands []string, logger *slog.Logger) *Consolidator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Consolidator{brands: brands, logger: logger}
}

// Consolidate deduplicates articles, fills brand slots from results and drops
// records that fail validation. Records come out ordered by ID.
func (c *Consolidator) Consolidate(articles []domain.Article, results *domain.ResultSet) Result {
	unique, merged := domain.MergeByID(articles)
	out := Result{
		Rejected:         map[domain.RejectReason]int{},
		DuplicatesMerged: merged,
	}

	for _, art := range unique {
		record := domain.ConsolidatedRecord{Article: art, Slots: c.slots(art.ID, results)}
		if reason, ok := validate(record); !ok {
			out.Rejected[reason]++
			out.Rejections = append(out.Rejections, domain.ValidationError{ArticleID: art.ID, Reason: reason})
			c.logger.Debug("record rejected", "article_id", art.ID, "reason", reason)
			continue
		}
		out.Records = append(out.Records, record)
	}

	sort.SliceStable(out.Records, func(i, j int) bool {
		return LessID(out.Records[i].Article.ID, out.Records[j].Article.ID)
	})

	c.logger.Info("consolidation finished",
		"records", len(out.Records),
		"duplicates_merged", merged,
		"rejected", len(out.Rejections))
	return out
}

func (c *Consolidator) slots(articleID string, results *domain.ResultSet) []domain.BrandSlot {
	slots := make([]domain.BrandSlot, len(c.brands))
	for i, brand := range c.brands {
		slots[i] = domain.BrandSlot{Brand: brand, Label: domain.LabelNotEvaluated}
		if res, ok := results.Get(domain.PairKey{ArticleID: articleID, Brand: brand}); ok {
			slots[i].Label = res.Label
			slots[i].Occurrences = res.Occurrences
		}
	}
	return slots
}

// validate returns the first rule the record breaks.
func validate(record domain.ConsolidatedRecord) (domain.RejectReason, bool) {
	art := record.Article
	switch {
	case strings.TrimSpace(art.ID) == "":
		return domain.RejectMissingID, false
	case strings.TrimSpace(art.ViewURL) == "" && strings.TrimSpace(art.OriginalURL) == "":
		return domain.RejectMissingURLs, false
	case strings.TrimSpace(art.Title) == "":
		return domain.RejectMissingTitle, false
	case !record.HasUsableLabel():
		return domain.RejectNoUsableLabel, false
	}
	return "", true
}

// LessID orders numeric IDs by value ahead of any other ID, which sort lexically.
func LessID(a, b string) bool {
	x, errX := strconv.ParseInt(a, 10, 64)
	y, errY := strconv.ParseInt(b, 10, 64)
	switch {
	case errX == nil && errY == nil:
		if x != y {
			return x < y
		}
		return a < b
	case errX == nil:
		return true
	case errY == nil:
		return false
	}
	return a < b
}
