package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	maxReportedRowErrors = 20
)

// Batch is a validated CSV ready to upsert. Rows follow Dataset.TableColumns.
type Batch struct {
	Dataset Dataset
	Tenant  string
	Rows    [][]any
}

// RowError describes one rejected row. Line is the 1-based CSV line.
type RowError struct {
	Line    int    `json:"line"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

// ValidationError lists everything wrong with a CSV.
type ValidationError struct {
	MissingHeaders []string   `json:"missing_headers,omitempty"`
	Rows           []RowError `json:"rows,omitempty"`
	Truncated      bool       `json:"truncated,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.MissingHeaders) > 0 {
		return "missing required headers: " + strings.Join(e.MissingHeaders, ", ")
	}
	if len(e.Rows) > 0 {
		r := e.Rows[0]
		return fmt.Sprintf("%d invalid rows; line %d %s: %s", len(e.Rows), r.Line, r.Column, r.Message)
	}
	return "invalid csv"
}

// Is lets callers match any validation failure with ErrInvalidCSV.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidCSV
}

// ErrInvalidCSV matches every validation failure.
var ErrInvalidCSV = errors.New("invalid csv")

// Parse reads a CSV with a header row, validates it against the dataset and
// converts each row. Rows repeating a conflict key replace earlier ones.
// Any invalid row rejects the whole file.
func Parse(r io.Reader, ds Dataset, tenant string) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ValidationError{MissingHeaders: ds.RequiredHeaders()}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrInvalidCSV, err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		index[h] = i
	}

	verr := &ValidationError{}
	for _, name := range ds.RequiredHeaders() {
		if _, ok := index[name]; !ok {
			verr.MissingHeaders = append(verr.MissingHeaders, name)
		}
	}
	if len(verr.MissingHeaders) > 0 {
		return nil, verr
	}

	keyPos := conflictPositions(ds)
	seen := make(map[string]int)
	batch := &Batch{Dataset: ds, Tenant: tenant}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			verr.add(RowError{Line: line, Message: err.Error()})
			continue
		}
		if blank(record) {
			continue
		}

		row, rowErrs := convertRow(ds, index, record, tenant, line)
		if len(rowErrs) > 0 {
			for _, re := range rowErrs {
				verr.add(re)
			}
			continue
		}

		key := conflictKey(row, keyPos)
		if i, dup := seen[key]; dup {
			batch.Rows[i] = row
			continue
		}
		seen[key] = len(batch.Rows)
		batch.Rows = append(batch.Rows, row)
	}

	if len(verr.Rows) > 0 {
		return nil, verr
	}
	return batch, nil
}

func (e *ValidationError) add(re RowError) {
	if len(e.Rows) >= maxReportedRowErrors {
		e.Truncated = true
		return
	}
	e.Rows = append(e.Rows, re)
}

func convertRow(ds Dataset, index map[string]int, record []string, tenant string, line int) ([]any, []RowError) {
	row := make([]any, 0, len(ds.Columns)+1)
	row = append(row, tenant)

	var errs []RowError
	for _, col := range ds.Columns {
		raw := ""
		if i, ok := index[col.Name]; ok && i < len(record) {
			raw = strings.TrimSpace(record[i])
		}
		if raw == "" {
			if col.Required {
				errs = append(errs, RowError{Line: line, Column: col.Name, Message: "value is required"})
			}
			row = append(row, nil)
			continue
		}

		v, err := convert(col.Kind, raw)
		if err != nil {
			errs = append(errs, RowError{Line: line, Column: col.Name, Message: err.Error()})
			row = append(row, nil)
			continue
		}
		row = append(row, v)
	}
	return row, errs
}

func convert(kind Kind, raw string) (any, error) {
	switch kind {
	case KindDate:
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("expected date YYYY-MM-DD, got %q", raw)
		}
		return t, nil
	case KindMonth:
		if t, err := time.Parse(dateLayout, raw); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
		t, err := time.Parse(monthLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("expected month YYYY-MM, got %q", raw)
		}
		return t, nil
	case KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", raw)
		}
		return n, nil
	case KindDecimal:
		f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", raw)
		}
		return f, nil
	default:
		return raw, nil
	}
}

func conflictPositions(ds Dataset) []int {
	cols := ds.TableColumns()
	var pos []int
	for i, c := range cols {
		for _, k := range ds.ConflictKeys {
			if c == k {
				pos = append(pos, i)
			}
		}
	}
	return pos
}

func conflictKey(row []any, pos []int) string {
	var b strings.Builder
	for _, p := range pos {
		fmt.Fprintf(&b, "%v\x1f", row[p])
	}
	return b.String()
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
