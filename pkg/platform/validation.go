package platform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/txn2/bi-proxy/pkg/metabase"
)

// cardInspector looks up card metadata.
type cardInspector interface {
	CardInfo(ctx context.Context, cardID int) (*metabase.CardInfo, error)
}

// checkKPICards looks up every configured KPI card and logs warnings for
// cards that are missing or archived. It returns the slugs that failed.
// Engine errors other than 404 are logged at debug level and skipped.
func (p *Platform) checkKPICards(ctx context.Context, cards cardInspector) []string {
	var stale []string
	for _, k := range p.config.KPIs {
		info, err := cards.CardInfo(ctx, k.CardID)
		if err != nil {
			var qe *metabase.QueryError
			if errors.As(err, &qe) && qe.StatusCode == http.StatusNotFound {
				slog.Warn("kpi references unknown card",
					"kpi", k.Slug,
					"card_id", k.CardID,
					"hint", "verify the card id or remove the kpi",
				)
				stale = append(stale, k.Slug)
				continue
			}
			slog.Debug("kpi card check skipped", "kpi", k.Slug, "card_id", k.CardID, "error", err)
			continue
		}
		if info.Archived {
			slog.Warn("kpi references archived card", "kpi", k.Slug, "card_id", k.CardID, "card", info.Name)
			stale = append(stale, k.Slug)
		}
	}
	return stale
}
