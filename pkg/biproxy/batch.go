package biproxy

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/txn2/bi-proxy/pkg/metabase"
)

// ExecuteMultipleCards runs the requests in chunks of MaxConcurrent. Each
// chunk runs concurrently and settles before the next starts. Results keep
// request order and one failure never affects the others.
func (s *Service) ExecuteMultipleCards(ctx context.Context, reqs []CardRequest, tenant string, opts BatchOptions) *BatchResult {
	size := opts.MaxConcurrent
	if size <= 0 {
		size = s.cfg.MaxConcurrent
	}
	tenant = s.tenant(tenant)
	s.metrics.ObserveBatch(len(reqs))

	results := make([]*Result, len(reqs))
	for start := 0; start < len(reqs); start += size {
		end := min(start+size, len(reqs))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				req := reqs[i]
				r := s.ExecuteCard(ctx, req.CardID, req.Parameters, tenant, CacheOptions{
					UseCache:   opts.UseCache,
					ForceFresh: opts.ForceFresh,
					CustomTTL:  req.CustomTTL,
				})
				r.RequestID = req.RequestID
				if r.RequestID == "" {
					r.RequestID = fmt.Sprintf("card_%d", req.CardID)
				}
				results[i] = r
				return nil
			})
		}
		_ = g.Wait()
	}

	out := &BatchResult{Success: true, Results: results}
	out.Summary.Total = len(results)
	for _, r := range results {
		if r.Success {
			out.Summary.Successful++
		} else {
			out.Summary.Failed++
		}
		if r.Metadata.FromCache {
			out.Summary.FromCache++
		}
	}

	slog.Info("executed card batch",
		"tenant", tenant,
		"total", out.Summary.Total,
		"successful", out.Summary.Successful,
		"failed", out.Summary.Failed,
		"from_cache", out.Summary.FromCache)
	return out
}

// WarmupCache fetches the cards fresh and stores the results, replacing
// whatever was cached for the same parameters.
func (s *Service) WarmupCache(ctx context.Context, cardIDs []int, tenant string, params metabase.Parameters) *BatchResult {
	reqs := make([]CardRequest, 0, len(cardIDs))
	for _, id := range cardIDs {
		reqs = append(reqs, CardRequest{CardID: id, Parameters: params})
	}
	res := s.ExecuteMultipleCards(ctx, reqs, tenant, BatchOptions{UseCache: true, ForceFresh: true})
	slog.Info("cache warmup complete", "tenant", s.tenant(tenant), "cards", len(cardIDs), "warmed", res.Summary.Successful)
	return res
}
