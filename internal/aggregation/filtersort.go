package aggregation

import (
	"sort"
	"strings"

	"github.com/smmtools/vk-insight-bot/internal/models"
)

// Sort keys accepted by the metrics endpoint. Anything else falls back
// to date.
const (
	SortByDate     = "date"
	SortByLikes    = "likes"
	SortByReposts  = "reposts"
	SortByComments = "comments"
	SortByViews    = "views"
)

// ParseFilters normalizes a comma-separated filter expression into the
// list of requested content kinds.
func ParseFilters(expr string) []string {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	var kinds []string
	for _, f := range strings.Split(expr, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			kinds = append(kinds, f)
		}
	}
	return kinds
}

// FilterPosts keeps posts matching at least one requested content kind:
// "text" for non-blank text, "photo"/"video" for an attachment of that
// type. An empty filter set keeps everything.
func FilterPosts(posts []models.ContentItem, kinds []string) []models.ContentItem {
	if len(kinds) == 0 {
		return posts
	}

	wantText, wantPhoto, wantVideo := false, false, false
	for _, k := range kinds {
		switch k {
		case "text":
			wantText = true
		case "photo":
			wantPhoto = true
		case "video":
			wantVideo = true
		}
	}

	var kept []models.ContentItem
	for i := range posts {
		p := &posts[i]
		if wantText && p.HasText() ||
			wantPhoto && p.HasAttachment("photo") ||
			wantVideo && p.HasAttachment("video") {
			kept = append(kept, posts[i])
		}
	}
	return kept
}

// SortPosts orders posts descending by the selected metric. The sort is
// stable: posts with equal keys keep their collected order. Missing
// reach counters count as zero.
func SortPosts(posts []models.ContentItem, sortBy string) {
	key := sortKeyFunc(sortBy)
	sort.SliceStable(posts, func(i, j int) bool {
		return key(&posts[i]) > key(&posts[j])
	})
}

func sortKeyFunc(sortBy string) func(*models.ContentItem) int64 {
	counter := func(name string) func(*models.ContentItem) int64 {
		return func(p *models.ContentItem) int64 { return p.Reach[name] }
	}
	switch sortBy {
	case SortByLikes:
		return counter("reach_subscribers")
	case SortByReposts:
		return counter("links")
	case SortByComments:
		return counter("report")
	case SortByViews:
		return counter("reach_total")
	default:
		return func(p *models.ContentItem) int64 { return p.Date }
	}
}
