package aggregation

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/models"
)

// ChunkSize is the stats.getPostReach batch limit.
const ChunkSize = 30

// ReachFetcher is the slice of the VK client the enricher needs. The
// returned slice must be aligned positionally with ids.
type ReachFetcher interface {
	PostReach(ctx context.Context, owner int64, ids []int64) ([]models.ReachStats, error)
}

// Enricher attaches reach statistics to freshly fetched wall posts.
type Enricher struct {
	fetcher ReachFetcher
	limiter Limiter
}

// NewEnricher creates an enricher over the given client slice and
// shared limiter.
func NewEnricher(fetcher ReachFetcher, limiter Limiter) *Enricher {
	return &Enricher{fetcher: fetcher, limiter: limiter}
}

// Enrich fetches reach stats for items in chunks of at most ChunkSize
// and attaches them in place. Stats pair with posts by position within
// each chunk, matching the submission order. A failed chunk degrades to
// empty stats for its posts only; after Enrich every item has a non-nil
// Reach map.
func (e *Enricher) Enrich(ctx context.Context, owner int64, items []models.ContentItem) {
	for start := 0; start < len(items); start += ChunkSize {
		end := start + ChunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		ids := make([]int64, len(chunk))
		for i := range chunk {
			ids[i] = chunk[i].ID
		}

		stats := e.fetchChunk(ctx, owner, ids)
		for i := range chunk {
			if i < len(stats) && stats[i] != nil {
				chunk[i].Reach = stats[i]
			} else {
				chunk[i].Reach = models.ReachStats{}
			}
		}
	}
}

func (e *Enricher) fetchChunk(ctx context.Context, owner int64, ids []int64) []models.ReachStats {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil
	}
	stats, err := e.fetcher.PostReach(ctx, owner, ids)
	if err != nil {
		logrus.Warnf("Reach stats unavailable for %d posts of owner %d: %v", len(ids), owner, err)
		return nil
	}
	return stats
}
