package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/elonfeng/tubeindex/pkg/video"
)

const (
	// DefaultEndpoint is the YouTube Data API v3 search endpoint.
	DefaultEndpoint = "https://youtube.googleapis.com/youtube/v3/search"

	// DefaultMaxResults is the page size requested per call.
	DefaultMaxResults = 25

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Client queries the YouTube search endpoint.
type Client struct {
	client     *http.Client
	apiKey     string
	endpoint   string
	maxResults int
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the search endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithMaxResults sets maxResults (1-50).
func WithMaxResults(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= 50 {
			c.maxResults = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// NewClient creates a search client for the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: defaultTimeout},
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		maxResults: DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FormatTimestamp renders t in the exact publishedAfter wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(video.TimestampLayout)
}

// Search returns up to maxResults videos matching query published after publishedAfter,
// newest first. Items that fail to decode are returned with Err set.
func (c *Client) Search(ctx context.Context, query string, publishedAfter time.Time) ([]video.RawItem, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("key", c.apiKey)
	params.Set("maxResults", strconv.Itoa(c.maxResults))
	params.Set("order", "date")
	params.Set("type", "video")
	params.Set("publishedAfter", FormatTimestamp(publishedAfter))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create youtube search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Err: stripKey(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	return decodeSearch(body)
}

func decodeSearch(body []byte) ([]video.RawItem, error) {
	var result struct {
		Items *[]json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &FetchError{Kind: KindMalformed, StatusCode: http.StatusOK, Err: fmt.Errorf("decode youtube search: %w", err)}
	}
	if result.Items == nil {
		return nil, &FetchError{Kind: KindMalformed, StatusCode: http.StatusOK, Reason: "response has no items array"}
	}

	items := make([]video.RawItem, 0, len(*result.Items))
	for i, raw := range *result.Items {
		var item ytSearchItem
		if err := json.Unmarshal(raw, &item); err != nil {
			items = append(items, video.RawItem{Err: fmt.Errorf("item %d: %w", i, err)})
			continue
		}
		items = append(items, item.raw())
	}
	return items, nil
}

func statusError(resp *http.Response) *FetchError {
	fe := &FetchError{Kind: KindStatus, StatusCode: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var env ytErrorEnvelope
	if json.Unmarshal(body, &env) == nil {
		fe.Reason = env.reason()
	}

	switch {
	case isQuotaReason(fe.Reason):
		fe.Kind = KindQuota
	case fe.Reason == "keyInvalid" || fe.Reason == "keyExpired":
		fe.Kind = KindAuth
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		fe.Kind = KindAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		fe.Kind = KindQuota
	}
	return fe
}

func isQuotaReason(reason string) bool {
	switch reason {
	case "quotaExceeded", "rateLimitExceeded", "dailyLimitExceeded", "userRateLimitExceeded":
		return true
	}
	return false
}

// stripKey drops the request URL from transport errors so the API key is never logged.
func stripKey(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

type ytSearchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		PublishedAt  string `json:"publishedAt"`
		ChannelID    string `json:"channelId"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelTitle string `json:"channelTitle"`
		Thumbnails   struct {
			High struct {
				URL string `json:"url"`
			} `json:"high"`
		} `json:"thumbnails"`
	} `json:"snippet"`
}

func (it ytSearchItem) raw() video.RawItem {
	return video.RawItem{
		VideoID:      it.ID.VideoID,
		ChannelID:    it.Snippet.ChannelID,
		ChannelTitle: it.Snippet.ChannelTitle,
		Title:        it.Snippet.Title,
		Description:  it.Snippet.Description,
		PublishedAt:  it.Snippet.PublishedAt,
		ThumbnailURL: it.Snippet.Thumbnails.High.URL,
	}
}

type ytErrorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (e ytErrorEnvelope) reason() string {
	for _, item := range e.Error.Errors {
		if item.Reason != "" {
			return item.Reason
		}
	}
	return e.Error.Message
}
