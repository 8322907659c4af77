// Package xlsx reads and writes donation workbooks with excelize.
package xlsx

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"donations/internal/core"
	"donations/internal/sheets"
)

// ContentType is the MIME type of an xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var columnWidths = []float64{20, 15, 10, 15, 15}

// Read parses the first sheet of the workbook in r.
func Read(r io.Reader) ([]sheets.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImportFormat, err)
	}
	defer f.Close()

	list := f.GetSheetList()
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", core.ErrImportFormat)
	}
	grid, err := f.GetRows(list[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImportFormat, err)
	}
	return sheets.RowsFromTable(grid), nil
}

// Write renders grid as a single right-to-left sheet and streams the
// workbook to w.
func Write(w io.Writer, grid [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheets.SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, row := range grid {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheets.SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheets.SheetName, col, col, width); err != nil {
			return err
		}
	}
	rtl := true
	if err := f.SetSheetView(sheets.SheetName, -1, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return fmt.Errorf("sheet view: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
