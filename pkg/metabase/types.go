package metabase

import (
	"slices"
	"time"
)

// Parameters are the caller-supplied values for a card's template variables.
type Parameters map[string]any

// Clone returns a shallow copy; nil becomes an empty map.
func (p Parameters) Clone() Parameters {
	out := make(Parameters, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Column describes one column of a card result.
type Column struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	BaseType    string `json:"base_type,omitempty"`
}

// Key returns the record key for the column: display name, falling back to name.
func (c Column) Key() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Record is a single result row keyed by column.
type Record map[string]any

// Result is the tabular output of a card execution.
type Result struct {
	Columns []Column `json:"cols"`
	Rows    [][]any  `json:"rows"`
}

// Records converts positional rows into records. Cells missing from a short
// row are nil.
func (r *Result) Records() []Record {
	if r == nil {
		return nil
	}
	records := make([]Record, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(Record, len(r.Columns))
		for i, col := range r.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			rec[col.Key()] = v
		}
		records = append(records, rec)
	}
	return records
}

// CardInfo is the card metadata returned by GET /api/card/{id}.
type CardInfo struct {
	ID              int       `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Display         string    `json:"display,omitempty"`
	QueryType       string    `json:"query_type,omitempty"`
	CollectionID    *int      `json:"collection_id,omitempty"`
	Archived        bool      `json:"archived"`
	EnableEmbedding bool      `json:"enable_embedding"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// Session is a snapshot of the engine session held by the SessionManager.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the session carries a token that has not expired at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// templateParameter is the engine's wire form of a template-tag parameter.
type templateParameter struct {
	Type   string `json:"type"`
	Target []any  `json:"target"`
	Value  any    `json:"value"`
}

type queryRequest struct {
	IgnoreCache bool                `json:"ignore_cache"`
	Parameters  []templateParameter `json:"parameters"`
}

type queryResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   *struct {
		Cols []Column `json:"cols"`
		Rows [][]any  `json:"rows"`
	} `json:"data"`
}

// templateParameters converts parameters into engine template-tag
// parameters, ordered by name so requests are reproducible.
func templateParameters(params Parameters) []templateParameter {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]templateParameter, 0, len(names))
	for _, name := range names {
		out = append(out, templateParameter{
			Type:   "category",
			Target: []any{"variable", []any{"template-tag", name}},
			Value:  params[name],
		})
	}
	return out
}
