package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVExporter writes export rows as CSV
type CSVExporter struct {
	writer        *csv.Writer
	options       CSVOptions
	headerWritten bool
}

// CSVOptions configures CSV export behavior
type CSVOptions struct {
	Delimiter     rune   `json:"delimiter"`      // Field delimiter (default: comma)
	UseCRLF       bool   `json:"use_crlf"`       // Use \r\n for line terminator
	IncludeHeader bool   `json:"include_header"` // Include column headers
	NumberFormat  string `json:"number_format"`  // Format for money columns (e.g., "%.2f")
}

// DefaultCSVOptions returns default CSV export options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter:     ',',
		UseCRLF:       false,
		IncludeHeader: true,
		NumberFormat:  "%.2f",
	}
}

// NewCSVExporter creates a new CSV exporter
func NewCSVExporter(w io.Writer, options CSVOptions) *CSVExporter {
	writer := csv.NewWriter(w)
	writer.Comma = options.Delimiter
	writer.UseCRLF = options.UseCRLF

	return &CSVExporter{
		writer:  writer,
		options: options,
	}
}

// WriteHeader writes the schema header row
func (e *CSVExporter) WriteHeader() error {
	if !e.options.IncludeHeader || e.headerWritten {
		return nil
	}
	if err := e.writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	e.headerWritten = true
	return nil
}

// WriteRow writes a single row in schema column order
func (e *CSVExporter) WriteRow(row Row) error {
	record := []string{
		row.BusinessName,
		row.OwnerName,
		row.Email,
		row.VerificationStatus,
		e.formatMoney(row.RevenueTotal),
		strconv.Itoa(row.OrderTotal),
		strconv.FormatFloat(row.Rating, 'f', 1, 64),
	}
	if err := e.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

// WriteAll writes the header followed by every row and flushes
func (e *CSVExporter) WriteAll(rows []Row) error {
	if err := e.WriteHeader(); err != nil {
		return err
	}
	for _, row := range rows {
		if err := e.WriteRow(row); err != nil {
			return err
		}
	}
	return e.Flush()
}

// Flush writes any buffered data to the underlying writer
func (e *CSVExporter) Flush() error {
	e.writer.Flush()
	return e.writer.Error()
}

func (e *CSVExporter) formatMoney(v float64) string {
	if e.options.NumberFormat != "" {
		return fmt.Sprintf(e.options.NumberFormat, v)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
