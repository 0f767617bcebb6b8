package formats

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// xlsxWriter is the Go replacement for sfm-utils's to_xlsx (xlsxwriter,
// constant_memory mode) - see DESIGN.md for why excelize/v2, sourced from
// elsewhere in the retrieval pack, fills this role instead of a teacher dep.
type xlsxWriter struct{}

func (xlsxWriter) Extension() string { return "xlsx" }

const xlsxSheet = "Sheet1"

func (xlsxWriter) WriteSegment(path string, items []models.IterItem, source RowSource) error {
	f := excelize.NewFile()
	defer f.Close()

	for col, h := range source.Header() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(xlsxSheet, cell, h); err != nil {
			return err
		}
	}

	for row, item := range items {
		for col, val := range source.Row(item) {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(xlsxSheet, cell, val); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
