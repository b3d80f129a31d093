// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the per-run download report as an Excel workbook.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/pdiddy/paper-harvester/pkg/types"
)

const (
	// FileName is the report's name inside the output directory.
	FileName = "download_report.xlsx"

	// SheetName is the worksheet holding the outcome rows.
	SheetName = "Report"
)

// Header is the report's column header row.
var Header = []string{"DOI", "Status", "Source"}

// Path returns the report location inside outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Generate writes outcomes, in order, to the report in outputDir,
// replacing any previous report, and returns its path.
func Generate(outputDir string, outcomes []types.Outcome) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return "", fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	for i, o := range outcomes {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := []string{o.Identifier, o.Status.String(), o.Source.DisplayName()}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return "", fmt.Errorf("writing row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(SheetName, "A", "B", 40); err != nil {
		return "", fmt.Errorf("sizing columns: %w", err)
	}

	path := Path(outputDir)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving report: %w", err)
	}
	return path, nil
}
