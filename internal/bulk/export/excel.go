package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const excelSheetName = "Businesses"

// WriteExcel encodes rows as an Excel workbook with a styled, frozen header
// row.
func WriteExcel(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", excelSheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"2D5A3D"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(excelSheetName, cell, col)
		f.SetCellStyle(excelSheetName, cell, cell, headerStyle)
	}

	f.SetPanes(excelSheetName, &excelize.Panes{
		Freeze: true,
		YSplit: 1,
	})

	for rowIdx, row := range rows {
		values := []interface{}{
			row.BusinessName,
			row.OwnerName,
			row.Email,
			row.VerificationStatus,
			row.RevenueTotal,
			row.OrderTotal,
			row.Rating,
		}
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(excelSheetName, cell, value)
		}
	}

	f.SetColWidth(excelSheetName, "A", "C", 26)
	f.SetColWidth(excelSheetName, "D", "G", 16)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
