package aggregation

import (
	"context"
	"errors"
	"testing"

	"github.com/smmtools/vk-insight-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReach returns one scripted result per chunk, in call order.
type scriptedReach struct {
	results []func(ids []int64) ([]models.ReachStats, error)
	gotIDs  [][]int64
}

func (f *scriptedReach) PostReach(ctx context.Context, owner int64, ids []int64) ([]models.ReachStats, error) {
	f.gotIDs = append(f.gotIDs, append([]int64(nil), ids...))
	i := len(f.gotIDs) - 1
	if i >= len(f.results) {
		return nil, errors.New("unexpected chunk")
	}
	return f.results[i](ids)
}

func okStats(ids []int64) ([]models.ReachStats, error) {
	stats := make([]models.ReachStats, len(ids))
	for i, id := range ids {
		stats[i] = models.ReachStats{"reach_total": id * 10}
	}
	return stats, nil
}

func failChunk([]int64) ([]models.ReachStats, error) {
	return nil, errors.New("stats unavailable")
}

func postsWithIDs(n int) []models.ContentItem {
	items := make([]models.ContentItem, n)
	for i := range items {
		items[i] = models.ContentItem{ID: int64(i + 1)}
	}
	return items
}

func TestEnricher_ChunkBoundaries(t *testing.T) {
	fetcher := &scriptedReach{results: []func([]int64) ([]models.ReachStats, error){okStats, okStats, okStats}}
	e := NewEnricher(fetcher, noopLimiter{})

	items := postsWithIDs(70)
	e.Enrich(context.Background(), -1, items)

	require.Len(t, fetcher.gotIDs, 3)
	assert.Len(t, fetcher.gotIDs[0], 30)
	assert.Len(t, fetcher.gotIDs[1], 30)
	assert.Len(t, fetcher.gotIDs[2], 10)

	for i := range items {
		assert.Equal(t, items[i].ID*10, items[i].Reach["reach_total"])
	}
}

func TestEnricher_FailedChunkIsIsolated(t *testing.T) {
	// 31 posts: chunk one succeeds, chunk two (the single trailing id)
	// fails and must not contaminate the first chunk.
	fetcher := &scriptedReach{results: []func([]int64) ([]models.ReachStats, error){okStats, failChunk}}
	e := NewEnricher(fetcher, noopLimiter{})

	items := postsWithIDs(31)
	e.Enrich(context.Background(), -1, items)

	require.Len(t, fetcher.gotIDs, 2)
	for i := 0; i < 30; i++ {
		assert.Equal(t, items[i].ID*10, items[i].Reach["reach_total"], "post %d keeps real stats", i)
	}
	require.NotNil(t, items[30].Reach)
	assert.Empty(t, items[30].Reach, "failed chunk degrades to empty stats")
}

func TestEnricher_PositionalPairing(t *testing.T) {
	// The remote reports stats in submission order; pairing is by
	// position, not by id matching. A reversed response mis-attaches
	// silently, which this pins as the contract.
	reversed := func(ids []int64) ([]models.ReachStats, error) {
		stats := make([]models.ReachStats, len(ids))
		for i := range ids {
			stats[i] = models.ReachStats{"reach_total": ids[len(ids)-1-i] * 10}
		}
		return stats, nil
	}
	fetcher := &scriptedReach{results: []func([]int64) ([]models.ReachStats, error){reversed}}
	e := NewEnricher(fetcher, noopLimiter{})

	items := postsWithIDs(3)
	e.Enrich(context.Background(), -1, items)

	assert.Equal(t, int64(30), items[0].Reach["reach_total"])
	assert.Equal(t, int64(20), items[1].Reach["reach_total"])
	assert.Equal(t, int64(10), items[2].Reach["reach_total"])
}

func TestEnricher_ShortResponsePadsWithEmpty(t *testing.T) {
	short := func(ids []int64) ([]models.ReachStats, error) {
		return []models.ReachStats{{"reach_total": 1}}, nil
	}
	fetcher := &scriptedReach{results: []func([]int64) ([]models.ReachStats, error){short}}
	e := NewEnricher(fetcher, noopLimiter{})

	items := postsWithIDs(3)
	e.Enrich(context.Background(), -1, items)

	assert.Equal(t, int64(1), items[0].Reach["reach_total"])
	for i := 1; i < 3; i++ {
		require.NotNil(t, items[i].Reach)
		assert.Empty(t, items[i].Reach)
	}
}

func TestEnricher_EveryPostGetsReach(t *testing.T) {
	fetcher := &scriptedReach{results: []func([]int64) ([]models.ReachStats, error){failChunk, failChunk}}
	e := NewEnricher(fetcher, noopLimiter{})

	items := postsWithIDs(45)
	e.Enrich(context.Background(), -1, items)

	for i := range items {
		assert.NotNil(t, items[i].Reach)
	}
}
