// Package workbook is the tabular persistence adapter: it writes the scraped
// leads and run analysis to an xlsx workbook and reads them back for the
// enrichment pass. File-lock conflicts never lose data, they fall back to an
// alternate timestamped filename.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/xuri/excelize/v2"

	"mapleads/internal/model"
)

const (
	LeadsSheet    = "Leads"
	AnalysisSheet = "Analysis"
)

var leadColumns = []string{
	"Name", "Address", "Website", "Phone", "Email",
	"Contact Person", "Business Phone", "Rating", "Hours", "PriceLevel", "Industry",
}

// AnalysisRow is one free-form metric/value line on the analysis sheet.
type AnalysisRow struct {
	Metric string
	Value  string
}

// Write persists the records and analysis to a timestamp-suffixed workbook in
// dir and returns the path actually written. On a save conflict (file lock)
// it retries once with a millisecond-timestamp alternate name.
func Write(dir string, records []model.BusinessRecord, analysis []AnalysisRow) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	f := build(records, analysis)
	defer f.Close()

	path := filepath.Join(dir, fmt.Sprintf("leads_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		alt := filepath.Join(dir, fmt.Sprintf("leads_%d.xlsx", time.Now().UnixMilli()))
		log.Warn("workbook save failed, retrying with alternate name", "path", path, "alt", alt, "err", err)
		if err := f.SaveAs(alt); err != nil {
			return "", fmt.Errorf("workbook save failed twice: %w", err)
		}
		return alt, nil
	}
	return path, nil
}

// WriteTo persists the records to an exact path, overwriting. Used by the
// enrichment checkpointer which needs stable filenames.
func WriteTo(path string, records []model.BusinessRecord, analysis []AnalysisRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f := build(records, analysis)
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("workbook save %s: %w", path, err)
	}
	return nil
}

func build(records []model.BusinessRecord, analysis []AnalysisRow) *excelize.File {
	f := excelize.NewFile()
	_ = f.SetSheetName(f.GetSheetName(0), LeadsSheet)

	for i, h := range leadColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(LeadsSheet, cell, h)
	}
	for r, rec := range records {
		vals := []string{
			rec.Name, rec.Address, rec.Website, rec.Phone, rec.Email,
			rec.ContactPerson, rec.BusinessPhone, rec.Rating, rec.Hours, rec.PriceLevel, rec.Industry,
		}
		for c, v := range vals {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(LeadsSheet, cell, v)
		}
	}
	for i := 1; i <= len(leadColumns); i++ {
		col, _ := excelize.ColumnNumberToName(i)
		_ = f.SetColWidth(LeadsSheet, col, col, 28)
	}

	if _, err := f.NewSheet(AnalysisSheet); err == nil {
		for r, row := range analysis {
			metricCell, _ := excelize.CoordinatesToCellName(1, r+1)
			valueCell, _ := excelize.CoordinatesToCellName(2, r+1)
			_ = f.SetCellValue(AnalysisSheet, metricCell, row.Metric)
			_ = f.SetCellValue(AnalysisSheet, valueCell, row.Value)
		}
		_ = f.SetColWidth(AnalysisSheet, "A", "B", 40)
	}
	return f
}

// Read loads the leads sheet of a previously written workbook into ordered
// records. Short rows are tolerated; missing cells come back empty.
func Read(path string) ([]model.BusinessRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(LeadsSheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", LeadsSheet, err)
	}

	var records []model.BusinessRecord
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		cell := func(idx int) string {
			if idx < len(row) {
				return row[idx]
			}
			return ""
		}
		records = append(records, model.BusinessRecord{
			Name:          cell(0),
			Address:       cell(1),
			Website:       cell(2),
			Phone:         cell(3),
			Email:         cell(4),
			ContactPerson: cell(5),
			BusinessPhone: cell(6),
			Rating:        cell(7),
			Hours:         cell(8),
			PriceLevel:    cell(9),
			Industry:      cell(10),
		})
	}
	return records, nil
}
