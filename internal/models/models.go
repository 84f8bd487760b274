package models

import (
	"encoding/json"
	"strings"
)

// Resource is one of the independently paginated VK content streams.
type Resource string

const (
	ResourcePosts  Resource = "posts"
	ResourcePhotos Resource = "photos"
	ResourceVideos Resource = "videos"
)

// ReachStats holds the per-post engagement counters returned by
// stats.getPostReach ("reach_subscribers", "reach_total", "links",
// "report", ...). An empty non-nil map means enrichment ran but the
// stats call failed for that post's chunk.
type ReachStats map[string]int64

// DateWindow is an inclusive unix-timestamp range. A zero bound means
// the window is open on that side.
type DateWindow struct {
	From int64 `json:"date_from,omitempty"`
	To   int64 `json:"date_to,omitempty"`
}

// Contains reports whether ts falls inside the window.
func (w DateWindow) Contains(ts int64) bool {
	if w.To != 0 && ts > w.To {
		return false
	}
	if w.From != 0 && ts < w.From {
		return false
	}
	return true
}

// Attachment is a single wall-post attachment. Only the type is
// interpreted (for content-kind filtering); the full provider object is
// preserved and re-emitted untouched.
type Attachment struct {
	Type string
	raw  json.RawMessage
}

func (a *Attachment) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	a.Type = probe.Type
	a.raw = append(a.raw[:0], data...)
	return nil
}

func (a Attachment) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	return json.Marshal(struct {
		Type string `json:"type"`
	}{a.Type})
}

// ContentItem is one post, photo or video. The engine interprets only
// the typed core (id, owner, date, text, attachment types); every other
// provider field rides along in Extra and survives re-serialization.
type ContentItem struct {
	ID          int64
	OwnerID     int64
	Date        int64
	Text        string
	Attachments []Attachment

	// Reach is attached to posts by the stats enricher, nil otherwise.
	Reach ReachStats

	Extra map[string]json.RawMessage
}

// HasText reports whether the item carries non-blank text.
func (c *ContentItem) HasText() bool {
	return strings.TrimSpace(c.Text) != ""
}

// HasAttachment reports whether any attachment has the given type.
func (c *ContentItem) HasAttachment(typ string) bool {
	for _, a := range c.Attachments {
		if a.Type == typ {
			return true
		}
	}
	return false
}

func (c *ContentItem) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	type core struct {
		ID          int64        `json:"id"`
		OwnerID     int64        `json:"owner_id"`
		Date        int64        `json:"date"`
		Text        string       `json:"text"`
		Attachments []Attachment `json:"attachments"`
	}
	var typed core
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	c.ID = typed.ID
	c.OwnerID = typed.OwnerID
	c.Date = typed.Date
	c.Text = typed.Text
	c.Attachments = typed.Attachments
	for _, k := range []string{"id", "owner_id", "date", "text", "attachments", "stats_post_reach"} {
		delete(fields, k)
	}
	c.Extra = fields
	return nil
}

func (c ContentItem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(c.Extra)+6)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["id"] = c.ID
	out["owner_id"] = c.OwnerID
	out["date"] = c.Date
	if c.Text != "" {
		out["text"] = c.Text
	}
	if len(c.Attachments) > 0 {
		out["attachments"] = c.Attachments
	}
	if c.Reach != nil {
		out["stats_post_reach"] = c.Reach
	}
	return json.Marshal(out)
}

// Page is the unit of collection: one fetched slice of a resource plus
// the remote-reported total item count.
type Page struct {
	Items []ContentItem
	Total int
}

// GroupInfo describes a resolved VK community. ID, name and screen name
// are interpreted; all requested profile fields (city, counters,
// verified, ...) pass through Extra.
type GroupInfo struct {
	ID         int64
	Name       string
	ScreenName string
	Extra      map[string]json.RawMessage
}

func (g *GroupInfo) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var typed struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	g.ID = typed.ID
	g.Name = typed.Name
	g.ScreenName = typed.ScreenName
	for _, k := range []string{"id", "name", "screen_name"} {
		delete(fields, k)
	}
	g.Extra = fields
	return nil
}

func (g GroupInfo) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(g.Extra)+3)
	for k, v := range g.Extra {
		out[k] = v
	}
	out["id"] = g.ID
	out["name"] = g.Name
	out["screen_name"] = g.ScreenName
	return json.Marshal(out)
}

// MetricsRequest carries the caller-supplied aggregation parameters.
type MetricsRequest struct {
	GroupName  string
	DateFrom   int64
	DateTo     int64
	QuickRange string // "week", "month" or "year"; overrides explicit bounds
	SortBy     string // date|likes|reposts|comments|views
	Filters    []string
}

// Metrics is the assembled aggregation result.
type Metrics struct {
	GroupInfo GroupInfo     `json:"group_info"`
	Posts     []ContentItem `json:"posts"`
	Photos    []ContentItem `json:"photos"`
	Videos    []ContentItem `json:"videos"`
}
