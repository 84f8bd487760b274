package aggregation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/models"
)

// PageSize is the VK maximum per wall.get / photos.getAll / video.get call.
const PageSize = 100

// Limiter gates outbound API calls. Satisfied by *rate.Limiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// PageFetcher is the slice of the VK client the collector needs.
type PageFetcher interface {
	FetchPage(ctx context.Context, resource models.Resource, owner int64, offset, count int) (models.Page, error)
}

// PageHook runs on every raw fetched page before date filtering. Used to
// attach reach stats to posts so that every fetched item is enriched
// even if the window later drops it.
type PageHook func(ctx context.Context, owner int64, items []models.ContentItem)

// Collector enumerates one resource stream page by page.
//
// It relies on the VK ordering contract: items arrive newest first,
// monotonically non-increasing by date across the whole enumeration.
// The lower-bound early stop is only correct under that assumption; an
// out-of-order stream may be under-collected.
type Collector struct {
	fetcher  PageFetcher
	limiter  Limiter
	pageSize int
}

// NewCollector creates a collector over the given client slice and
// shared limiter.
func NewCollector(fetcher PageFetcher, limiter Limiter) *Collector {
	return &Collector{fetcher: fetcher, limiter: limiter, pageSize: PageSize}
}

// Collect walks all pages of resource for owner and returns the items
// inside the window, in the order received.
//
// Page-fetch failures for photos and videos are swallowed into "no more
// pages" and never surface; for posts the partial result is returned
// together with the error so the caller can decide. Context
// cancellation always aborts with the context error.
func (c *Collector) Collect(ctx context.Context, resource models.Resource, owner int64, window models.DateWindow, hook PageHook) ([]models.ContentItem, error) {
	var collected []models.ContentItem
	offset := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return collected, err
		}

		page, err := c.fetcher.FetchPage(ctx, resource, owner, offset, c.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				return collected, ctx.Err()
			}
			if swallowsPageErrors(resource) {
				logrus.Warnf("Stopping %s collection for owner %d at offset %d: %v", resource, owner, offset, err)
				return collected, nil
			}
			return collected, fmt.Errorf("fetch %s page at offset %d: %w", resource, offset, err)
		}
		if len(page.Items) == 0 {
			break
		}

		if hook != nil {
			hook(ctx, owner, page.Items)
		}

		for i := range page.Items {
			if window.Contains(page.Items[i].Date) {
				collected = append(collected, page.Items[i])
			}
		}

		// Pages are newest first: once the oldest raw item of this page
		// predates the lower bound, later pages cannot qualify.
		oldest := page.Items[len(page.Items)-1].Date
		if window.From != 0 && oldest < window.From {
			break
		}

		if offset+c.pageSize >= page.Total {
			break
		}
		offset += c.pageSize
	}

	return collected, nil
}

// swallowsPageErrors encodes the degradation policy: photo and video
// pagination treats any outer fetch failure (a disabled section, an
// unavailable API) as end of stream; post failures are reported.
func swallowsPageErrors(resource models.Resource) bool {
	return resource == models.ResourcePhotos || resource == models.ResourceVideos
}
