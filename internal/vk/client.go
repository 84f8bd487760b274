package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/smmtools/vk-insight-bot/internal/models"
)

const (
	defaultBaseURL = "https://api.vk.com/method"
	apiVersion     = "5.131"
)

// groupFields is the full profile field list requested on group lookup.
// The fields are not interpreted here; they pass through to the caller.
var groupFields = strings.Join([]string{
	"activity", "ban_info", "can_post", "can_see_all_posts", "city", "contacts",
	"counters", "country", "cover", "description", "finish_date", "fixed_post",
	"links", "market", "members_count", "place", "site", "start_date", "status",
	"verified", "wiki_page",
}, ",")

// Client talks to the VK API over HTTPS. All calls are fallible and
// return the typed error kinds from errors.go; rate limiting is the
// caller's responsibility.
type Client struct {
	client *resty.Client
	token  string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.client.SetBaseURL(u) }
}

// NewClient creates a VK API client for the given access token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		client: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(30 * time.Second).
			SetHeader("User-Agent", "VK-Insight-Bot/1.0"),
		token: token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

// call performs one API method call and unwraps the response envelope.
func (c *Client) call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", c.token).
		SetQueryParam("v", apiVersion).
		SetQueryParams(params)

	resp, err := req.Get("/" + method)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnavailable, method, resp.StatusCode())
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: %s: malformed response: %v", ErrUnavailable, method, err)
	}
	if env.Error != nil {
		return nil, mapAPIError(method, env.Error)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("%w: %s: empty response envelope", ErrUnavailable, method)
	}
	return env.Response, nil
}

func mapAPIError(method string, e *apiError) error {
	switch e.Code {
	case 100, 113:
		// invalid parameter: how groups.getById reports unknown ids
		return fmt.Errorf("%w: %s: [%d] %s", ErrGroupNotFound, method, e.Code, e.Message)
	case 7, 15, 18, 19, 200, 201, 203, 204:
		return fmt.Errorf("%w: %s: [%d] %s", ErrPermissionDenied, method, e.Code, e.Message)
	default:
		return fmt.Errorf("%w: %s: [%d] %s", ErrUnavailable, method, e.Code, e.Message)
	}
}

// GroupByName resolves a community by screen name or numeric id (without
// the leading minus) and returns its profile.
func (c *Client) GroupByName(ctx context.Context, name string) (models.GroupInfo, error) {
	raw, err := c.call(ctx, "groups.getById", map[string]string{
		"group_id": name,
		"fields":   groupFields,
	})
	if err != nil {
		return models.GroupInfo{}, err
	}

	groups, err := decodeGroups(raw)
	if err != nil {
		return models.GroupInfo{}, fmt.Errorf("%w: groups.getById: %v", ErrUnavailable, err)
	}
	if len(groups) == 0 {
		return models.GroupInfo{}, fmt.Errorf("%w: %q", ErrGroupNotFound, name)
	}
	return groups[0], nil
}

// decodeGroups accepts both envelope shapes the API has used: a bare
// array and an object with a "groups" array.
func decodeGroups(raw json.RawMessage) ([]models.GroupInfo, error) {
	trimmed := strings.TrimLeft(string(raw), " \t\r\n")
	if strings.HasPrefix(trimmed, "[") {
		var groups []models.GroupInfo
		if err := json.Unmarshal(raw, &groups); err != nil {
			return nil, err
		}
		return groups, nil
	}
	var wrapped struct {
		Groups []models.GroupInfo `json:"groups"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Groups, nil
}

// FetchPage fetches one page of the given resource for the owner.
// Owners of communities are negative by VK convention.
func (c *Client) FetchPage(ctx context.Context, resource models.Resource, owner int64, offset, count int) (models.Page, error) {
	var method string
	params := map[string]string{
		"owner_id": strconv.FormatInt(owner, 10),
		"offset":   strconv.Itoa(offset),
		"count":    strconv.Itoa(count),
	}
	switch resource {
	case models.ResourcePosts:
		method = "wall.get"
	case models.ResourcePhotos:
		method = "photos.getAll"
		params["extended"] = "1"
	case models.ResourceVideos:
		method = "video.get"
		params["extended"] = "1"
	default:
		return models.Page{}, fmt.Errorf("%w: unknown resource %q", ErrUnavailable, resource)
	}

	raw, err := c.call(ctx, method, params)
	if err != nil {
		return models.Page{}, err
	}

	var page struct {
		Count int                  `json:"count"`
		Items []models.ContentItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return models.Page{}, fmt.Errorf("%w: %s: malformed page: %v", ErrUnavailable, method, err)
	}
	return models.Page{Items: page.Items, Total: page.Count}, nil
}

// PostReach fetches reach statistics for up to 30 posts in one call.
// The result is aligned positionally with ids.
func (c *Client) PostReach(ctx context.Context, owner int64, ids []int64) ([]models.ReachStats, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatInt(id, 10)
	}

	raw, err := c.call(ctx, "stats.getPostReach", map[string]string{
		"owner_id": strconv.FormatInt(owner, 10),
		"post_ids": strings.Join(strIDs, ","),
	})
	if err != nil {
		return nil, err
	}

	var stats []models.ReachStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, fmt.Errorf("%w: stats.getPostReach: malformed response: %v", ErrUnavailable, err)
	}
	logrus.Debugf("Fetched post reach for %d posts of owner %d", len(stats), owner)
	return stats, nil
}
