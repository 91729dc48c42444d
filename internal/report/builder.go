// Package report flattens consolidated records into bulk-import rows.
package report

import (
	"time"

	"ProtagonismAnalyzer/internal/domain"
)

const (
	// SuffixLayout renders the run timestamp for rows and file names.
	SuffixLayout = "20060102_150405"
	// DefaultLinkText is the display text of viewer URL hyperlinks.
	DefaultLinkText = "Link"

	filePrefix = "Tabela_atualizacao_em_lote_limpo_"
)

// Fixed leading columns of the bulk-import table.
var baseHeader = []string{"Id", "UrlVisualizacao", "UrlOriginal", "Titulo"}

// Builder has no I/O; the clock is injectable for tests.
type Builder struct {
	brands   []string
	linkText string
	now      func() time.Time
}

// NewBuilder returns a builder with one label column per brand.
func NewBuilder(brands []string, linkText string) *Builder {
	if linkText == "" {
		linkText = DefaultLinkText
	}
	return &Builder{brands: brands, linkText: linkText, now: time.Now}
}

// Header returns the column names. Each brand contributes its level column
// followed by its occurrences column, brands in configuration order.
func Header(brands []string) []string {
	header := make([]string, 0, len(baseHeader)+2*len(brands))
	header = append(header, baseHeader...)
	for _, b := range brands {
		header = append(header, "Nivel de Protagonismo "+b, "Ocorrencias "+b)
	}
	return header
}

// FileNames derives both output names from the run suffix.
func FileNames(suffix string) domain.ReportFiles {
	return domain.ReportFiles{
		Plain:      filePrefix + suffix + ".xlsx",
		Hyperlinks: filePrefix + "hyperlinks_" + suffix + ".xlsx",
	}
}

// Build emits one row per record. The timestamp is read once and shared by
// every row and by the output file names.
func (b *Builder) Build(runID string, records []domain.ConsolidatedRecord) domain.BatchReport {
	ts := b.now()
	suffix := ts.Format(SuffixLayout)

	report := domain.BatchReport{
		RunID:     runID,
		Timestamp: ts,
		Suffix:    suffix,
		Brands:    append([]string(nil), b.brands...),
		Header:    Header(b.brands),
		Rows:      make([]domain.BatchReportRow, 0, len(records)),
		Files:     FileNames(suffix),
	}

	for _, rec := range records {
		report.Rows = append(report.Rows, b.row(rec, ts))
	}
	return report
}

func (b *Builder) row(rec domain.ConsolidatedRecord, ts time.Time) domain.BatchReportRow {
	row := domain.BatchReportRow{
		ID:          rec.Article.ID,
		ViewURL:     rec.Article.ViewURL,
		OriginalURL: rec.Article.OriginalURL,
		Title:       rec.Article.Title,
		Levels:      make([]string, len(b.brands)),
		Occurrences: make([]*int, len(b.brands)),
		Timestamp:   ts,
	}
	if link, ok := domain.NewHyperlink(rec.Article.ViewURL, b.linkText); ok {
		row.ViewLink = &link
	}

	bySlot := make(map[string]domain.BrandSlot, len(rec.Slots))
	for _, slot := range rec.Slots {
		bySlot[slot.Brand] = slot
	}
	for i, brand := range b.brands {
		slot, ok := bySlot[brand]
		if !ok || !slot.Label.Usable() {
			continue
		}
		row.Levels[i] = slot.Label.Display()
		n := slot.Occurrences
		row.Occurrences[i] = &n
	}
	return row
}
