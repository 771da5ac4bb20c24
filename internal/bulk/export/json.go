package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON encodes rows as a JSON array. Object keys follow the schema
// column order since encoding/json preserves struct field order.
func WriteJSON(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	return nil
}
