// Package report exports published quiz results as Excel workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"tutor-live-service/internal/domain"
)

// SheetName is the worksheet holding one row per ranked student.
const SheetName = "results"

var header = []interface{}{"room_id", "rank", "user_id", "display_name", "score", "bonus", "ended_early", "published_at"}

// Build lays records out on the results sheet. The caller closes the file.
func Build(records []domain.ResultRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := 2
	for _, record := range records {
		for _, result := range record.Results {
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			values := []interface{}{
				record.RoomID,
				result.Rank,
				result.UserID,
				result.DisplayName,
				result.Score,
				result.Bonus,
				record.EndedEarly,
				record.PublishedAt.UTC().Format(time.RFC3339),
			}
			if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("write row %d: %w", row, err)
			}
			row++
		}
	}
	return f, nil
}

// Write streams the workbook for records to w.
func Write(w io.Writer, records []domain.ResultRecord) error {
	f, err := Build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteFile saves the workbook for records at path.
func WriteFile(path string, records []domain.ResultRecord) error {
	f, err := Build(records)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}
