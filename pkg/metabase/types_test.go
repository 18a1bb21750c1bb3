package metabase

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResult_Records(t *testing.T) {
	res := &Result{
		Columns: []Column{
			{Name: "day", DisplayName: "Day"},
			{Name: "revenue"},
		},
		Rows: [][]any{
			{"2026-01-01", 10.5},
			{"2026-01-02"},
		},
	}

	assert.Equal(t, []Record{
		{"Day": "2026-01-01", "revenue": 10.5},
		{"Day": "2026-01-02", "revenue": nil},
	}, res.Records())

	var empty *Result
	assert.Nil(t, empty.Records())
	assert.Empty(t, (&Result{Columns: res.Columns, Rows: [][]any{}}).Records())
}

func TestParameters_Clone(t *testing.T) {
	var nilParams Parameters
	clone := nilParams.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)

	orig := Parameters{"a": 1}
	clone = orig.Clone()
	clone["b"] = 2
	assert.Len(t, orig, 1)
}

func TestTemplateParameters_SortedByName(t *testing.T) {
	got := templateParameters(Parameters{"tenant": "acme", "region": "eu"})
	assert.Len(t, got, 2)
	assert.Equal(t, "eu", got[0].Value)
	assert.Equal(t, []any{"variable", []any{"template-tag", "region"}}, got[0].Target)
	assert.Equal(t, "acme", got[1].Value)
	assert.Empty(t, templateParameters(nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate([]byte("short")))
	long := make([]byte, 150)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, truncate(long), maxErrorBody)
}
