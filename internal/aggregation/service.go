package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/models"
	"github.com/smmtools/vk-insight-bot/internal/vk"
	"golang.org/x/time/rate"
)

// DefaultRequestInterval is the minimum spacing between VK API calls.
const DefaultRequestInterval = 300 * time.Millisecond

// Client is the full VK capability the aggregator consumes.
type Client interface {
	GroupByName(ctx context.Context, name string) (models.GroupInfo, error)
	PageFetcher
	ReachFetcher
}

// Service runs one bounded aggregation per call: group lookup, the
// three content streams, reach enrichment, then filter and sort of the
// posts stream. Nothing is cached across calls.
type Service struct {
	client    Client
	limiter   *rate.Limiter
	collector *Collector
	enricher  *Enricher
	now       func() time.Time
}

// NewService creates an aggregation service over the given client. One
// limiter throttles all outbound calls of all invocations together, so
// concurrent requests still respect the VK quota.
func NewService(client Client, requestInterval time.Duration) *Service {
	if requestInterval <= 0 {
		requestInterval = DefaultRequestInterval
	}
	limiter := rate.NewLimiter(rate.Every(requestInterval), 1)
	return &Service{
		client:    client,
		limiter:   limiter,
		collector: NewCollector(client, limiter),
		enricher:  NewEnricher(client, limiter),
		now:       time.Now,
	}
}

type collectResult struct {
	resource models.Resource
	items    []models.ContentItem
	err      error
}

// Aggregate resolves the community and collects its posts, photos and
// videos inside the requested window. Group resolution failure is fatal;
// per-resource failures degrade to partial or empty slices.
func (s *Service) Aggregate(ctx context.Context, req models.MetricsRequest) (*models.Metrics, error) {
	start := s.now()

	group, err := s.client.GroupByName(ctx, req.GroupName)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", req.GroupName, err)
	}

	// Community content is addressed by the negated group id.
	owner := -group.ID
	if group.ID < 0 {
		owner = group.ID
	}

	window := ResolveWindow(req, s.now())
	logrus.Infof("Aggregating group %d (%s), window [%d, %d]", group.ID, group.ScreenName, window.From, window.To)

	results := make(chan collectResult, 3)
	var wg sync.WaitGroup
	for _, resource := range []models.Resource{models.ResourcePosts, models.ResourcePhotos, models.ResourceVideos} {
		wg.Add(1)
		go func(res models.Resource) {
			defer wg.Done()
			var hook PageHook
			if res == models.ResourcePosts {
				hook = s.enricher.Enrich
			}
			items, err := s.collector.Collect(ctx, res, owner, window, hook)
			results <- collectResult{resource: res, items: items, err: err}
		}(resource)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	metrics := &models.Metrics{GroupInfo: group}
	for r := range results {
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.Errorf("Collecting %s for group %d failed, keeping %d partial items: %v", r.resource, group.ID, len(r.items), r.err)
		}
		switch r.resource {
		case models.ResourcePosts:
			metrics.Posts = r.items
		case models.ResourcePhotos:
			metrics.Photos = r.items
		case models.ResourceVideos:
			metrics.Videos = r.items
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	metrics.Posts = FilterPosts(metrics.Posts, req.Filters)
	SortPosts(metrics.Posts, req.SortBy)

	logrus.Infof("Aggregated group %d in %v: %d posts, %d photos, %d videos",
		group.ID, time.Since(start), len(metrics.Posts), len(metrics.Photos), len(metrics.Videos))
	return metrics, nil
}

// IsNotFound reports whether err means the community does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, vk.ErrGroupNotFound)
}
