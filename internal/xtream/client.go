// Package xtream talks to Xtream Codes panels over their player_api.php JSON API.
package xtream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/models"
)

// ErrDecode wraps JSON bodies that do not match the expected shape.
var ErrDecode = errors.New("xtream: decode response")

// Account is the set of credentials used for every call.
type Account struct {
	ServerURL  string
	Username   string
	Password   string
	IncludeVOD bool
}

// Credentials returns the persisted form of the account.
func (a Account) Credentials() models.XtreamCredentials {
	return models.XtreamCredentials{ServerURL: a.ServerURL, Username: a.Username, Password: a.Password}
}

// Client issues player_api.php calls through a fetcher.Getter.
type Client struct {
	getter  fetcher.Getter
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient returns a Client. limiter may be nil for unpaced requests.
func NewClient(g fetcher.Getter, limiter *rate.Limiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{getter: g, limiter: limiter, logger: logger}
}

// Authenticate reports whether the panel accepts the account. Transport and
// decode failures are reported as false.
func (c *Client) Authenticate(ctx context.Context, a Account) bool {
	var resp authResponse
	if err := c.call(ctx, a, "", &resp); err != nil {
		c.logger.Debug("xtream authenticate failed", zap.String("server", a.ServerURL), zap.Error(err))
		return false
	}
	return resp.ok()
}

// ListLiveCategories returns the live categories in panel order.
func (c *Client) ListLiveCategories(ctx context.Context, a Account) ([]models.Category, error) {
	return c.categories(ctx, a, "get_live_categories")
}

// ListVodCategories returns the VOD categories in panel order.
func (c *Client) ListVodCategories(ctx context.Context, a Account) ([]models.Category, error) {
	return c.categories(ctx, a, "get_vod_categories")
}

// ListLiveStreams returns live channels. Group carries the raw category id; callers
// resolve it to a display name.
func (c *Client) ListLiveStreams(ctx context.Context, a Account) ([]models.Channel, error) {
	return c.streams(ctx, a, "get_live_streams", models.StreamKindLive)
}

// ListVodStreams returns movies as channels, Group carrying the raw category id.
func (c *Client) ListVodStreams(ctx context.Context, a Account) ([]models.Channel, error) {
	return c.streams(ctx, a, "get_vod_streams", models.StreamKindMovie)
}

func (c *Client) categories(ctx context.Context, a Account, action string) ([]models.Category, error) {
	var remote []remoteCategory
	if err := c.call(ctx, a, action, &remote); err != nil {
		return nil, err
	}
	out := make([]models.Category, 0, len(remote))
	for _, rc := range remote {
		cat := models.Category{ID: string(rc.CategoryID), Name: rc.CategoryName}
		if rc.ParentID != "" && rc.ParentID != "0" {
			cat.ParentID = rc.ParentID.ptr()
		}
		out = append(out, cat)
	}
	return out, nil
}

func (c *Client) streams(ctx context.Context, a Account, action, kind string) ([]models.Channel, error) {
	var remote []remoteStream
	if err := c.call(ctx, a, action, &remote); err != nil {
		return nil, err
	}
	out := make([]models.Channel, 0, len(remote))
	for _, rs := range remote {
		ext := rs.ContainerExtension
		if kind == models.StreamKindLive {
			ext = "m3u8"
		}
		streamURL := StreamURL(a, kind, string(rs.StreamID), ext)
		out = append(out, models.Channel{
			ID:           string(rs.StreamID),
			Name:         rs.Name,
			URL:          streamURL,
			LogoURL:      flexString(rs.StreamIcon).ptr(),
			Group:        rs.CategoryID.ptr(),
			CategoryID:   rs.CategoryID.ptr(),
			EpgChannelID: rs.EpgChannelID.ptr(),
		})
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, a Account, action string, dst any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	body, err := c.getter.Get(ctx, APIURL(a, action))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, actionName(action), err)
	}
	return nil
}

// APIURL builds {server}/player_api.php?username=..&password=..[&action=..].
func APIURL(a Account, action string) string {
	q := url.Values{}
	q.Set("username", a.Username)
	q.Set("password", a.Password)
	if action != "" {
		q.Set("action", action)
	}
	return serverBase(a) + "/player_api.php?" + q.Encode()
}

// StreamURL builds {server}/{kind}/{user}/{pass}/{id}.{ext}. ext defaults to
// m3u8 for live streams and mp4 otherwise.
func StreamURL(a Account, kind, streamID, ext string) string {
	if ext == "" {
		ext = "mp4"
		if kind == models.StreamKindLive {
			ext = "m3u8"
		}
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s.%s", serverBase(a), kind,
		url.PathEscape(a.Username), url.PathEscape(a.Password), streamID, ext)
}

func serverBase(a Account) string {
	return strings.TrimRight(a.ServerURL, "/")
}

func actionName(action string) string {
	if action == "" {
		return "authenticate"
	}
	return action
}
