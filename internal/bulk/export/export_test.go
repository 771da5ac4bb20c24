package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRows() []Row {
	return []Row{
		{
			BusinessName:       "Green Basket",
			OwnerName:          "Rahim Uddin",
			Email:              "rahim@greenbasket.test",
			VerificationStatus: "approved",
			RevenueTotal:       152340.5,
			OrderTotal:         412,
			Rating:             4.7,
		},
		{
			BusinessName:       "Dhaka Spice House",
			OwnerName:          "Salma Khatun",
			Email:              "salma@spicehouse.test",
			VerificationStatus: "pending",
			RevenueTotal:       0,
			OrderTotal:         0,
			Rating:             0,
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = ParseFormat("excel")
	assert.True(t, ok)
	assert.Equal(t, FormatExcel, f)

	_, ok = ParseFormat("parquet")
	assert.False(t, ok)
}

func TestCSVColumnOrder(t *testing.T) {
	var buf bytes.Buffer
	exporter := NewCSVExporter(&buf, DefaultCSVOptions())
	require.NoError(t, exporter.WriteAll(sampleRows()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "businessName,ownerName,email,verificationStatus,revenueTotal,orderTotal,rating", lines[0])
	assert.Equal(t, "Green Basket,Rahim Uddin,rahim@greenbasket.test,approved,152340.50,412,4.7", lines[1])
	assert.Equal(t, "Dhaka Spice House,Salma Khatun,salma@spicehouse.test,pending,0.00,0,0.0", lines[2])
}

func TestCSVWithoutHeader(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultCSVOptions()
	opts.IncludeHeader = false
	exporter := NewCSVExporter(&buf, opts)
	require.NoError(t, exporter.WriteAll(sampleRows()[:1]))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "Green Basket,"))
}

func TestJSONKeyOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleRows()))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Green Basket", decoded[0]["businessName"])
	assert.Equal(t, "approved", decoded[0]["verificationStatus"])

	// Keys serialize in schema order for downstream tooling.
	body := buf.String()
	assert.Less(t, strings.Index(body, "businessName"), strings.Index(body, "ownerName"))
	assert.Less(t, strings.Index(body, "verificationStatus"), strings.Index(body, "revenueTotal"))
}

func TestJSONEmptyRows(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestExcelRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	header, err := f.GetCellValue(excelSheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "businessName", header)

	name, err := f.GetCellValue(excelSheetName, "A2")
	require.NoError(t, err)
	assert.Equal(t, "Green Basket", name)

	status, err := f.GetCellValue(excelSheetName, "D3")
	require.NoError(t, err)
	assert.Equal(t, "pending", status)
}

func TestPDFOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePDF(&buf, sampleRows()))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestRenderDispatch(t *testing.T) {
	data, contentType, ext, err := Render(FormatCSV, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Equal(t, "csv", ext)
	assert.Contains(t, string(data), "businessName")

	_, contentType, ext, err = Render(FormatJSON, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "json", ext)

	_, _, _, err = Render(Format("yaml"), sampleRows())
	assert.Error(t, err)
}
