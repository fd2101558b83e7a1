package app

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/choferia/agenda-service/internal/domain"
)

// HistorySheetName is the sheet the history export is written to.
const HistorySheetName = "Historial de pagos"

// WriteHistoryWorkbook renders a payment history projection as an XLSX
// workbook and writes it to w. Amounts are emitted in whole currency units
// with two decimals since the sheet is meant for humans, not for re-import.
func WriteHistoryWorkbook(w io.Writer, items []domain.PaymentHistoryItem) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(HistorySheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Fecha", "Monto aplicado", "Monto del pago", "Método", "Día base", "Franco", "Nota del pago", "Nota del día", "Registrado"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(HistorySheetName, cell, header)
	}

	for i, item := range items {
		row := i + 2
		f.SetCellValue(HistorySheetName, fmt.Sprintf("A%d", row), item.Date.Format(domain.DateLayout))
		f.SetCellValue(HistorySheetName, fmt.Sprintf("B%d", row), centavosToUnits(item.AmountApplied))
		f.SetCellValue(HistorySheetName, fmt.Sprintf("C%d", row), centavosToUnits(item.PaymentAmount))
		f.SetCellValue(HistorySheetName, fmt.Sprintf("D%d", row), string(item.Method))
		f.SetCellValue(HistorySheetName, fmt.Sprintf("E%d", row), centavosToUnits(item.BaseAmount))
		f.SetCellValue(HistorySheetName, fmt.Sprintf("F%d", row), item.IsDayOff)
		if item.PaymentNote != nil {
			f.SetCellValue(HistorySheetName, fmt.Sprintf("G%d", row), *item.PaymentNote)
		}
		if item.DayNote != nil {
			f.SetCellValue(HistorySheetName, fmt.Sprintf("H%d", row), *item.DayNote)
		}
		f.SetCellValue(HistorySheetName, fmt.Sprintf("I%d", row), item.PaymentCreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func centavosToUnits(amount int64) float64 {
	return float64(amount) / 100.0
}
