// Package normalize reshapes card results into the scalar, table and
// timeseries forms dashboards consume.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/txn2/bi-proxy/pkg/metabase"
)

// Scalar is a single headline value.
type Scalar struct {
	Value  float64  `json:"value"`
	Format string   `json:"format,omitempty"`
	Change *float64 `json:"change,omitempty"`
}

// TableColumn labels one table column.
type TableColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Table is a labelled grid of positional rows.
type Table struct {
	Columns []TableColumn `json:"columns"`
	Data    [][]any       `json:"data"`
}

// Point is one timeseries sample.
type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

// Series is a named sequence of points.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Timeseries holds one or more series.
type Timeseries struct {
	Series []Series `json:"series"`
}

// ToScalar reads the first row. A result with value/format/change columns
// is read by name; otherwise the second cell is used when the row has more
// than one, else the first.
func ToScalar(r *metabase.Result) Scalar {
	if r == nil || len(r.Rows) == 0 {
		return Scalar{}
	}
	row := r.Rows[0]

	if idx := columnIndex(r.Columns, "value"); idx >= 0 {
		s := Scalar{Value: ToFloat(cell(row, idx))}
		if i := columnIndex(r.Columns, "format"); i >= 0 {
			s.Format = fmt.Sprint(cell(row, i))
		}
		if i := columnIndex(r.Columns, "change"); i >= 0 && cell(row, i) != nil {
			change := ToFloat(cell(row, i))
			s.Change = &change
		}
		return s
	}

	if len(row) > 1 {
		return Scalar{Value: ToFloat(row[1])}
	}
	return Scalar{Value: ToFloat(cell(row, 0))}
}

// ToTable labels the result's columns and keeps its rows.
func ToTable(r *metabase.Result) Table {
	t := Table{Columns: []TableColumn{}, Data: [][]any{}}
	if r == nil {
		return t
	}
	for _, c := range r.Columns {
		key, label := c.Name, c.DisplayName
		if key == "" {
			key = c.DisplayName
		}
		if label == "" {
			label = c.Name
		}
		t.Columns = append(t.Columns, TableColumn{Key: key, Label: label})
	}
	if r.Rows != nil {
		t.Data = r.Rows
	}
	return t
}

// ToTimeseries builds one series from a date column and a value column.
// The date column is the first whose base type is a date or whose name
// mentions a date, defaulting to the first column.
func ToTimeseries(r *metabase.Result, label string) Timeseries {
	if r == nil || len(r.Columns) == 0 {
		return Timeseries{Series: []Series{}}
	}

	dateIdx := 0
	for i, c := range r.Columns {
		if strings.Contains(c.BaseType, "Date") || strings.Contains(strings.ToLower(c.Name), "date") {
			dateIdx = i
			break
		}
	}
	valueIdx := 0
	if dateIdx == 0 && len(r.Columns) > 1 {
		valueIdx = 1
	}

	name := label
	if name == "" {
		name = r.Columns[valueIdx].DisplayName
	}
	if name == "" {
		name = "value"
	}

	points := make([]Point, 0, len(r.Rows))
	for _, row := range r.Rows {
		x := cell(row, dateIdx)
		xs := ""
		if x != nil {
			xs = fmt.Sprint(x)
		}
		points = append(points, Point{X: xs, Y: ToFloat(cell(row, valueIdx))})
	}
	return Timeseries{Series: []Series{{Name: name, Points: points}}}
}

// ToFloat coerces a cell to a number. Unparseable values are zero.
func ToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		if err != nil {
			return 0
		}
		return f
	case bool:
		if n {
			return 1
		}
	}
	return 0
}

func columnIndex(cols []metabase.Column, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}
