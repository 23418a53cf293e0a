package trials

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Columns is the column order used by every export format.
var Columns = []string{"trial", "block", "stim", "reference", "is_same", "in_mem", "feedback", "trigger", "expected"}

// WriteCSV writes the table with a header row.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range t.Rows() {
		record := []string{
			strconv.Itoa(r.Trial),
			strconv.Itoa(r.Block),
			strconv.Itoa(r.Stim),
			strconv.FormatBool(r.Reference),
			strconv.FormatBool(r.IsSame),
			strconv.Itoa(r.InMem),
			strconv.FormatBool(r.Feedback),
			strconv.Itoa(r.Trigger),
			string(r.Expected),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row %d: %w", r.Trial, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the rows as an indented JSON array.
func WriteJSON(w io.Writer, t *Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	rows := t.Rows()
	if rows == nil {
		rows = []Row{}
	}
	return enc.Encode(rows)
}

// MarshalJSON encodes the table as its row array.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := t.Rows()
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(rows)
}

// UnmarshalJSON decodes a row array into the table.
func (t *Table) UnmarshalJSON(data []byte) error {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	t.rows = rows
	return nil
}
