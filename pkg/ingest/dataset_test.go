package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{name: "canonical", in: "daily_sales", want: "daily_sales", ok: true},
		{name: "alias", in: "sales_daily", want: "daily_sales", ok: true},
		{name: "hyphenated", in: "clients-master", want: "clients_master", ok: true},
		{name: "mixed case", in: " Goals_MTD ", want: "monthly_targets", ok: true},
		{name: "customer alias", in: "sales_by_customer_daily", want: "sales_by_customer", ok: true},
		{name: "unknown", in: "inventory", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, ok := Lookup(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ds.Name)
		})
	}
}

func TestDatasetColumns(t *testing.T) {
	ds, ok := Lookup("order_status")
	require.True(t, ok)

	assert.Equal(t, []string{"order_id", "status", "order_date"}, ds.RequiredHeaders())
	assert.Equal(t,
		[]string{TenantColumn, "order_id", "status", "order_date", "customer_key", "revenue"},
		ds.TableColumns())
	assert.Equal(t,
		[]string{"status", "order_date", "customer_key", "revenue"},
		ds.UpdateColumns())
}

func TestDatasetsAreScopedByTenant(t *testing.T) {
	all := Datasets()
	require.Len(t, all, 6)
	for _, ds := range all {
		assert.Equal(t, TenantColumn, ds.ConflictKeys[0], ds.Name)
		assert.NotEmpty(t, ds.Table, ds.Name)
	}

	all[0].Name = "mutated"
	_, ok := Lookup("clients_master")
	assert.True(t, ok, "Datasets must return a copy")
}
