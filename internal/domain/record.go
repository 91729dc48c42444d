package domain

import (
	"strings"
	"time"
)

// BrandSlot is one brand column of a consolidated record.
type BrandSlot struct {
	Brand       string
	Label       Label
	Occurrences int
}

// ConsolidatedRecord merges one article with a slot per configured brand.
type ConsolidatedRecord struct {
	Article Article
	Slots   []BrandSlot
}

// HasUsableLabel reports whether at least one slot carries signal.
func (r ConsolidatedRecord) HasUsableLabel() bool {
	for _, slot := range r.Slots {
		if slot.Label.Usable() {
			return true
		}
	}
	return false
}

// Hyperlink is a spreadsheet link cell.
type Hyperlink struct {
	URL  string
	Text string
}

// NewHyperlink returns a link for http(s) URLs; ok is false otherwise.
func NewHyperlink(rawURL, text string) (Hyperlink, bool) {
	u := strings.TrimSpace(rawURL)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return Hyperlink{}, false
	}
	if text == "" {
		text = u
	}
	return Hyperlink{URL: u, Text: text}, true
}

// Formula renders the link as a spreadsheet HYPERLINK formula.
func (h Hyperlink) Formula() string {
	escape := func(s string) string { return strings.ReplaceAll(s, `"`, `""`) }
	return `=HYPERLINK("` + escape(h.URL) + `","` + escape(h.Text) + `")`
}

// BatchReportRow is one output row of the bulk-import table.
type BatchReportRow struct {
	ID          string
	ViewURL     string
	ViewLink    *Hyperlink
	OriginalURL string
	Title       string
	Levels      []string
	Occurrences []*int
	Timestamp   time.Time
}

// BatchReport is the full row set of a run, ready for a ReportWriter.
type BatchReport struct {
	RunID     string
	Timestamp time.Time
	// Suffix is the timestamp rendered for file names, shared by every output of the run.
	Suffix  string
	Brands  []string
	Header  []string
	Rows    []BatchReportRow
	Files   ReportFiles
}

// ReportFiles names the files a writer should produce.
type ReportFiles struct {
	Plain      string
	Hyperlinks string
}

// RunSummary reports what a run did, even when it partially failed.
type RunSummary struct {
	RunID             string
	StartedAt         time.Time
	FinishedAt        time.Time
	EndpointsFailed   []string
	ArticlesFetched   int
	DuplicatesMerged  int
	PairsTotal        int
	PairsDispatched   int
	PairsAutoResolved int
	PairsCorrected    int
	PairsFailed       int
	PairsUndispatched int
	FailureBasis      FailureBasis
	Rejected          map[RejectReason]int
	RecordsWritten    int
	Files             []string
	PartiallyFailed   bool
	Aborted           bool
	AbortReason       AbortReason
}

// RejectedTotal sums rejections across reasons.
func (s RunSummary) RejectedTotal() int {
	total := 0
	for _, n := range s.Rejected {
		total += n
	}
	return total
}

// FailureRate is failed pairs over the denominator FailureBasis selects.
func (s RunSummary) FailureRate() float64 {
	return s.FailureBasis.Rate(s.PairsFailed, s.PairsDispatched, s.PairsTotal)
}

// FailureBasis selects the denominator of the failure rate.
type FailureBasis string

const (
	// BasisDispatched divides by the pairs routed to the classifier.
	BasisDispatched FailureBasis = "dispatched"
	// BasisTotal divides by every pair of the run, locally resolved and reused ones included.
	BasisTotal FailureBasis = "total"
)

// Denominator returns total for BasisTotal and dispatched otherwise.
func (b FailureBasis) Denominator(dispatched, total int) int {
	if b == BasisTotal {
		return total
	}
	return dispatched
}

// Rate is failed over the basis denominator, zero when nothing was counted.
func (b FailureBasis) Rate(failed, dispatched, total int) float64 {
	n := b.Denominator(dispatched, total)
	if n == 0 {
		return 0
	}
	return float64(failed) / float64(n)
}
