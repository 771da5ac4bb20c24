package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// column widths in mm, landscape A4 (277mm usable)
var pdfColumnWidths = []float64{55, 45, 55, 32, 32, 28, 22}

// WritePDF encodes rows as a landscape table, repeating the header row on
// every page.
func WritePDF(w io.Writer, rows []Row) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, "Business Verification Export", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	writePDFHeader(pdf)

	pdf.SetFont("Arial", "", 9)
	for _, row := range rows {
		if pdf.GetY() > 180 {
			pdf.AddPage()
			writePDFHeader(pdf)
			pdf.SetFont("Arial", "", 9)
		}

		cells := []string{
			row.BusinessName,
			row.OwnerName,
			row.Email,
			row.VerificationStatus,
			fmt.Sprintf("%.2f", row.RevenueTotal),
			fmt.Sprintf("%d", row.OrderTotal),
			fmt.Sprintf("%.1f", row.Rating),
		}
		for i, cell := range cells {
			pdf.CellFormat(pdfColumnWidths[i], 7, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func writePDFHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(45, 90, 61)
	pdf.SetTextColor(255, 255, 255)
	for i, col := range Columns {
		pdf.CellFormat(pdfColumnWidths[i], 8, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}
