// Package xlsx renders batch reports as Excel workbooks.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"ProtagonismAnalyzer/internal/domain"
	"ProtagonismAnalyzer/internal/ports"
)

const sheetName = "Sheet1"

// Writer saves the plain table and the hyperlinked copy side by side.
type Writer struct {
	dir    string
	logger *slog.Logger
}

var _ ports.ReportWriter = (*Writer)(nil)

// NewWriter writes into dir, creating it on first use.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger.With("component", "xlsx_writer")}
}

// Write produces report.Files.Plain and report.Files.Hyperlinks. A failed
// hyperlink copy is logged and skipped; the plain table is the import file.
func (w *Writer) Write(ctx context.Context, report domain.BatchReport) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plain := filepath.Join(w.dir, report.Files.Plain)
	if err := w.save(plain, report, false); err != nil {
		return nil, fmt.Errorf("write %s: %w", report.Files.Plain, err)
	}
	w.logger.Info("report saved", "path", plain, "rows", len(report.Rows))
	written := []string{plain}

	if report.Files.Hyperlinks == "" || ctx.Err() != nil {
		return written, nil
	}
	linked := filepath.Join(w.dir, report.Files.Hyperlinks)
	if err := w.save(linked, report, true); err != nil {
		w.logger.Warn("hyperlink report skipped", "path", linked, "error", err)
		return written, nil
	}
	w.logger.Info("hyperlink report saved", "path", linked)
	return append(written, linked), nil
}

func (w *Writer) save(path string, report domain.BatchReport, links bool) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return err
	}

	header := make([]any, len(report.Header))
	for i, h := range report.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(report.Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return err
	}

	linkStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0563C1", Underline: "single"},
	})
	if err != nil {
		return err
	}

	formulas := 0
	for i, row := range report.Rows {
		r := i + 2
		if err := writeRow(f, r, row); err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
		if !links || row.ViewLink == nil {
			continue
		}
		fallback, err := writeLink(f, r, *row.ViewLink, linkStyle)
		if err != nil {
			return fmt.Errorf("row %d: %w", r, err)
		}
		if fallback {
			formulas++
		}
	}
	if formulas > 0 {
		w.logger.Warn("worksheet hyperlink limit reached, used formulas", "cells", formulas)
	}

	if err := f.SetColWidth(sheetName, "A", "A", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "C", 40); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "D", "D", 60); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func writeRow(f *excelize.File, r int, row domain.BatchReportRow) error {
	values := make([]any, 0, 4+len(row.Levels)+len(row.Occurrences))
	values = append(values, row.ID, row.ViewURL, row.OriginalURL, row.Title)
	// Level and occurrences pair up per brand, matching report.Header.
	for i, level := range row.Levels {
		var occ any
		if i < len(row.Occurrences) && row.Occurrences[i] != nil {
			occ = *row.Occurrences[i]
		}
		values = append(values, level, occ)
	}
	start, err := excelize.CoordinatesToCellName(1, r)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheetName, start, &values)
}

// writeLink turns the viewer URL cell into a link showing link.Text. Past the
// per-sheet hyperlink limit the cell gets a HYPERLINK formula instead.
func writeLink(f *excelize.File, r int, link domain.Hyperlink, style int) (bool, error) {
	cell, err := excelize.CoordinatesToCellName(2, r)
	if err != nil {
		return false, err
	}
	fallback := false
	display, tooltip := link.Text, link.URL
	err = f.SetCellHyperLink(sheetName, cell, link.URL, "External", excelize.HyperlinkOpts{
		Display: &display,
		Tooltip: &tooltip,
	})
	switch {
	case errors.Is(err, excelize.ErrTotalSheetHyperlinks):
		if err := f.SetCellFormula(sheetName, cell, strings.TrimPrefix(link.Formula(), "=")); err != nil {
			return false, err
		}
		fallback = true
	case err != nil:
		return false, err
	default:
		if err := f.SetCellValue(sheetName, cell, link.Text); err != nil {
			return false, err
		}
	}
	return fallback, f.SetCellStyle(sheetName, cell, cell, style)
}
