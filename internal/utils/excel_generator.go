package utils

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"reportdesk/internal/models"
)

// CreatePicksHistoryWorkbook writes the picks-history read-model to an
// Excel workbook for offline review.
func CreatePicksHistoryWorkbook(path string, rows []models.PickHistory) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "PicksHistory"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}

	headers := []string{"Report Date", "Week", "Ticker", "Exchange", "Side", "Target Change (%)", "Report ID"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	pctStyle := getNumberStyle(f, "0.00")
	for rowIdx, row := range rows {
		rowNum := rowIdx + 2 // header occupies row one

		f.SetCellValue(sheet, fmt.Sprintf("A%d", rowNum), row.ReportDate.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", rowNum), row.ReportWeek)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", rowNum), row.Ticker)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", rowNum), row.Exchange)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", rowNum), row.Side)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", rowNum), row.TargetChangePct)
		f.SetCellValue(sheet, fmt.Sprintf("G%d", rowNum), row.ReportID)

		f.SetCellStyle(sheet, fmt.Sprintf("F%d", rowNum), fmt.Sprintf("F%d", rowNum), pctStyle)
	}

	for i := 1; i <= len(headers); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		f.SetColWidth(sheet, colName, colName, 18)
	}

	// Highlight short positions so they stand out when scanning.
	if len(rows) > 0 {
		shortStyle, _ := f.NewConditionalStyle(&excelize.Style{
			Font: &excelize.Font{Color: "9A0511"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"FEC7CE"}, Pattern: 1},
		})
		area := fmt.Sprintf("E2:E%d", len(rows)+1)
		f.SetConditionalFormat(sheet, area, []excelize.ConditionalFormatOptions{
			{
				Type:     "cell",
				Criteria: "==",
				Format:   &shortStyle,
				Value:    fmt.Sprintf("%q", models.SideShort),
			},
		})
	}

	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	return f.SaveAs(path)
}

func getNumberStyle(f *excelize.File, format string) int {
	style, err := f.NewStyle(&excelize.Style{
		CustomNumFmt: &format,
	})
	if err != nil {
		return 0
	}
	return style
}
