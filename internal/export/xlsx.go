package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/rshade/eap-emissions-calculator/internal/emissions"
)

// SheetName is the worksheet the history is written to.
const SheetName = "Emissions"

// WriteXLSX writes the history as an Excel workbook with the same layout as
// the CSV export. Numbers are stored as numeric cells.
func WriteXLSX(w io.Writer, records []emissions.Record) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	headers := emissions.TableHeaders()
	for i, h := range headers {
		if err := setCell(f, i+1, 1, h); err != nil {
			return err
		}
	}
	if err := styleRow(f, 1, len(headers), bold); err != nil {
		return err
	}

	row := 2
	for _, r := range records {
		values := []interface{}{r.Source.Name, r.Quantity, r.Source.Unit, r.Energy, r.Emissions}
		for i, v := range values {
			if err := setCell(f, i+1, row, v); err != nil {
				return err
			}
		}
		row++
	}

	totals := emissions.SumRecords(records)
	for i, v := range []interface{}{emissions.TotalLabel, nil, nil, totals.Energy, totals.Emissions} {
		if v == nil {
			continue
		}
		if err := setCell(f, i+1, row, v); err != nil {
			return err
		}
	}
	if err := styleRow(f, row, len(headers), bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SheetName, cell, v)
}

func styleRow(f *excelize.File, row, cols, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, first, last, style)
}
