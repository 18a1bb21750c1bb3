package ingest

import (
	"slices"
	"strings"
)

// Kind is the type a CSV cell is converted to.
type Kind int

// Cell kinds.
const (
	KindText Kind = iota
	KindDate
	KindMonth
	KindInt
	KindDecimal
)

// Column is one dataset column. Required columns must appear in the header
// and be non-empty in every row.
type Column struct {
	Name     string
	Kind     Kind
	Required bool
}

// Dataset describes an uploadable CSV and the table it lands in.
type Dataset struct {
	Name         string
	Aliases      []string
	Table        string
	Columns      []Column
	ConflictKeys []string
}

// TenantColumn scopes every upload table.
const TenantColumn = "tenant_id"

// RequiredHeaders returns the names of required columns.
func (d Dataset) RequiredHeaders() []string {
	var out []string
	for _, c := range d.Columns {
		if c.Required {
			out = append(out, c.Name)
		}
	}
	return out
}

// TableColumns returns the insert column list, tenant first.
func (d Dataset) TableColumns() []string {
	out := make([]string, 0, len(d.Columns)+1)
	out = append(out, TenantColumn)
	for _, c := range d.Columns {
		out = append(out, c.Name)
	}
	return out
}

// UpdateColumns returns the columns overwritten on conflict.
func (d Dataset) UpdateColumns() []string {
	var out []string
	for _, c := range d.Columns {
		if !slices.Contains(d.ConflictKeys, c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

var datasets = []Dataset{
	{
		Name:  "clients_master",
		Table: "clients_master_upload",
		Columns: []Column{
			{Name: "customer_key", Kind: KindText, Required: true},
			{Name: "customer_name", Kind: KindText, Required: true},
			{Name: "first_order_date", Kind: KindDate, Required: true},
			{Name: "last_order_date", Kind: KindDate, Required: true},
			{Name: "avg_cycle_days", Kind: KindInt, Required: true},
			{Name: "city", Kind: KindText, Required: true},
			{Name: "state", Kind: KindText, Required: true},
		},
		ConflictKeys: []string{TenantColumn, "customer_key"},
	},
	{
		Name:    "sales_by_customer",
		Aliases: []string{"sales_by_customer_daily"},
		Table:   "sales_by_customer_daily_upload",
		Columns: []Column{
			{Name: "sale_date", Kind: KindDate, Required: true},
			{Name: "customer_key", Kind: KindText, Required: true},
			{Name: "orders", Kind: KindInt, Required: true},
			{Name: "revenue", Kind: KindDecimal, Required: true},
		},
		ConflictKeys: []string{TenantColumn, "sale_date", "customer_key"},
	},
	{
		Name:    "daily_sales",
		Aliases: []string{"sales_daily"},
		Table:   "daily_sales_upload",
		Columns: []Column{
			{Name: "sale_date", Kind: KindDate, Required: true},
			{Name: "orders", Kind: KindInt, Required: true},
			{Name: "revenue", Kind: KindDecimal, Required: true},
		},
		ConflictKeys: []string{TenantColumn, "sale_date"},
	},
	{
		Name:    "order_status",
		Aliases: []string{"sales_status"},
		Table:   "order_status_upload",
		Columns: []Column{
			{Name: "order_id", Kind: KindText, Required: true},
			{Name: "status", Kind: KindText, Required: true},
			{Name: "order_date", Kind: KindDate, Required: true},
			{Name: "customer_key", Kind: KindText},
			{Name: "revenue", Kind: KindDecimal},
		},
		ConflictKeys: []string{TenantColumn, "order_id"},
	},
	{
		Name:    "top_clients",
		Aliases: []string{"top_customers"},
		Table:   "top_clients_upload",
		Columns: []Column{
			{Name: "customer_key", Kind: KindText, Required: true},
			{Name: "customer_name", Kind: KindText, Required: true},
			{Name: "total_revenue", Kind: KindDecimal, Required: true},
			{Name: "orders_count", Kind: KindInt},
			{Name: "ranking_position", Kind: KindInt},
		},
		ConflictKeys: []string{TenantColumn, "customer_key"},
	},
	{
		Name:    "monthly_targets",
		Aliases: []string{"goals_mtd"},
		Table:   "monthly_targets_upload",
		Columns: []Column{
			{Name: "target_month", Kind: KindMonth, Required: true},
			{Name: "target_revenue", Kind: KindDecimal, Required: true},
			{Name: "target_orders", Kind: KindInt},
			{Name: "actual_revenue", Kind: KindDecimal},
			{Name: "actual_orders", Kind: KindInt},
		},
		ConflictKeys: []string{TenantColumn, "target_month"},
	},
}

// Lookup finds a dataset by name or alias. Hyphens and underscores are
// interchangeable.
func Lookup(name string) (Dataset, bool) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, d := range datasets {
		if d.Name == name || slices.Contains(d.Aliases, name) {
			return d, true
		}
	}
	return Dataset{}, false
}

// Datasets returns every known dataset.
func Datasets() []Dataset {
	return slices.Clone(datasets)
}
