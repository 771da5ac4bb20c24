package export

import (
	"bytes"
	"fmt"
)

// Format selects the artifact encoding for an export job.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// ParseFormat normalizes a wire format value. Empty defaults to CSV.
func ParseFormat(raw string) (Format, bool) {
	switch raw {
	case "", "csv":
		return FormatCSV, true
	case "json":
		return FormatJSON, true
	case "xlsx", "excel":
		return FormatExcel, true
	case "pdf":
		return FormatPDF, true
	default:
		return "", false
	}
}

// Columns is the artifact schema in its required order. Downstream tooling
// keys on positions, so the order never changes.
var Columns = []string{
	"businessName",
	"ownerName",
	"email",
	"verificationStatus",
	"revenueTotal",
	"orderTotal",
	"rating",
}

// Row is one exported business entity. Field order mirrors Columns.
type Row struct {
	BusinessName       string  `json:"businessName" db:"business_name"`
	OwnerName          string  `json:"ownerName" db:"owner_name"`
	Email              string  `json:"email" db:"email"`
	VerificationStatus string  `json:"verificationStatus" db:"verification_status"`
	RevenueTotal       float64 `json:"revenueTotal" db:"revenue_total"`
	OrderTotal         int     `json:"orderTotal" db:"order_total"`
	Rating             float64 `json:"rating" db:"rating"`
}

// Render encodes rows in the requested format, returning the artifact bytes,
// its content type, and the filename extension.
func Render(format Format, rows []Row) ([]byte, string, string, error) {
	var buf bytes.Buffer

	switch format {
	case FormatCSV:
		exporter := NewCSVExporter(&buf, DefaultCSVOptions())
		if err := exporter.WriteAll(rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "text/csv", "csv", nil

	case FormatJSON:
		if err := WriteJSON(&buf, rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "application/json", "json", nil

	case FormatExcel:
		if err := WriteExcel(&buf, rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", nil

	case FormatPDF:
		if err := WritePDF(&buf, rows); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "application/pdf", "pdf", nil

	default:
		return nil, "", "", fmt.Errorf("unsupported export format %q", format)
	}
}
