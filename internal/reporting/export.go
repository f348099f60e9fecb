package reporting

import (
	"fmt"
	"io"
	"strings"

	"qms/walkin-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Report"

var exportHeader = []any{"Date", "Name", "Cellphone Number", "Barber", "Time In", "Time Out", "Payment Type", "Products", "Amount"}

// WriteWorkbook writes the view as a single-sheet XLSX workbook with a
// closing total row.
func WriteWorkbook(w io.Writer, view View) error {
	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	if err := file.SetSheetName(file.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := setRow(file, 1, exportHeader); err != nil {
		return err
	}
	for i, record := range view.Records {
		if err := setRow(file, i+2, recordRow(record)); err != nil {
			return err
		}
	}
	totalRow := make([]any, len(exportHeader))
	totalRow[len(totalRow)-2] = "Total"
	totalRow[len(totalRow)-1] = view.Total
	if err := setRow(file, len(view.Records)+2, totalRow); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(file *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := file.SetSheetRow(exportSheet, cell, &values); err != nil {
		return fmt.Errorf("set row %d: %w", row, err)
	}
	return nil
}

func recordRow(record models.HistoryRecord) []any {
	date := record.DateRaw
	if !record.Date.IsZero() {
		date = record.Date.Format("2006-01-02")
	}
	return []any{
		date,
		record.Name,
		record.Cellphone,
		record.Barber,
		record.TimeIn,
		record.TimeOut,
		record.PaymentType,
		strings.Join(record.Products, ", "),
		record.Amount,
	}
}
