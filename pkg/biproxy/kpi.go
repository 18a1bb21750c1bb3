package biproxy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/txn2/bi-proxy/pkg/normalize"
)

// Shape selects how a KPI result is normalized.
type Shape string

// KPI shapes.
const (
	ShapeScalar     Shape = "scalar"
	ShapeTable      Shape = "table"
	ShapeTimeseries Shape = "timeseries"
)

// Valid reports whether the shape is known.
func (s Shape) Valid() bool {
	switch s {
	case ShapeScalar, ShapeTable, ShapeTimeseries:
		return true
	}
	return false
}

// KPI maps a dashboard slug to a card and a result shape.
type KPI struct {
	Slug   string `json:"slug" yaml:"slug"`
	CardID int    `json:"card_id" yaml:"card_id"`
	Shape  Shape  `json:"shape" yaml:"shape"`
	Label  string `json:"label,omitempty" yaml:"label"`
}

// KPIResult is a normalized KPI.
type KPIResult struct {
	Slug     string   `json:"slug"`
	Shape    Shape    `json:"shape"`
	Label    string   `json:"label,omitempty"`
	Data     any      `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// ErrUnknownKPI is returned for slugs that are not configured.
var ErrUnknownKPI = errors.New("unknown kpi")

// KPIs returns the configured KPIs ordered by slug.
func (s *Service) KPIs() []KPI {
	out := make([]KPI, 0, len(s.kpis))
	for _, k := range s.kpis {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b KPI) int { return strings.Compare(a.Slug, b.Slug) })
	return out
}

// KPI executes the KPI's card through the cache and normalizes the result.
// Engine failures are returned as errors wrapping the envelope's error.
func (s *Service) KPI(ctx context.Context, slug, tenant string) (*KPIResult, error) {
	k, ok := s.kpis[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKPI, slug)
	}

	res := s.ExecuteCard(ctx, k.CardID, nil, tenant, DefaultCacheOptions())
	if !res.Success {
		return nil, fmt.Errorf("kpi %s: %w", slug, res.Err())
	}

	out := &KPIResult{Slug: k.Slug, Shape: k.Shape, Label: k.Label, Metadata: res.Metadata}
	switch k.Shape {
	case ShapeTable:
		out.Data = normalize.ToTable(res.Raw())
	case ShapeTimeseries:
		out.Data = normalize.ToTimeseries(res.Raw(), k.Label)
	default:
		out.Data = normalize.ToScalar(res.Raw())
	}
	return out, nil
}
