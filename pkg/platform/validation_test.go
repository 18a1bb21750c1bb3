package platform

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/txn2/bi-proxy/pkg/biproxy"
	"github.com/txn2/bi-proxy/pkg/metabase"
)

type fakeCards map[int]func() (*metabase.CardInfo, error)

func (f fakeCards) CardInfo(_ context.Context, cardID int) (*metabase.CardInfo, error) {
	if fn, ok := f[cardID]; ok {
		return fn()
	}
	return nil, &metabase.QueryError{CardID: cardID, StatusCode: http.StatusNotFound, Body: "Not found."}
}

func TestCheckKPICards(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	p := &Platform{config: &Config{KPIs: []biproxy.KPI{
		{Slug: "revenue", CardID: 1, Shape: biproxy.ShapeScalar},
		{Slug: "orders", CardID: 2, Shape: biproxy.ShapeTable},
		{Slug: "legacy", CardID: 3, Shape: biproxy.ShapeScalar},
		{Slug: "offline", CardID: 4, Shape: biproxy.ShapeTimeseries},
	}}}
	cards := fakeCards{
		1: func() (*metabase.CardInfo, error) { return &metabase.CardInfo{ID: 1, Name: "Revenue"}, nil },
		3: func() (*metabase.CardInfo, error) { return &metabase.CardInfo{ID: 3, Name: "Old", Archived: true}, nil },
		4: func() (*metabase.CardInfo, error) { return nil, errors.New("connection refused") },
	}

	stale := p.checkKPICards(context.Background(), cards)
	if strings.Join(stale, ",") != "orders,legacy" {
		t.Errorf("stale = %v, want [orders legacy]", stale)
	}

	out := buf.String()
	for _, want := range []string{"kpi references unknown card", "kpi=orders", "kpi references archived card", "kpi=legacy"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "offline") {
		t.Errorf("engine errors should not warn:\n%s", out)
	}
}
