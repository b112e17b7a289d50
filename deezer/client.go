// Package deezer searches the public Deezer catalogue.
package deezer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL = "https://api.deezer.com"
	searchLimit    = 5
)

// Artist of a track
type Artist struct {
	Name          string `json:"name"`
	PictureMedium string `json:"picture_medium"`
}

// Album of a track
type Album struct {
	Title       string `json:"title"`
	CoverMedium string `json:"cover_medium"`
	CoverBig    string `json:"cover_big"`
}

// Track is a search hit
type Track struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Preview string `json:"preview"`
	Artist  Artist `json:"artist"`
	Album   Album  `json:"album"`
}

// Cover returns the largest album cover available
func (t Track) Cover() string {
	if t.Album.CoverBig != "" {
		return t.Album.CoverBig
	}
	return t.Album.CoverMedium
}

type searchResponse struct {
	Data  []Track `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client queries the Deezer search API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a search client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Search returns up to five tracks matching query, best match first
func (c *Client) Search(ctx context.Context, query string) ([]Track, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", fmt.Sprintf("%d", searchLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deezer search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deezer search: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("deezer search: %w", err)
	}

	var out searchResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode deezer response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("deezer search: %s: %s", out.Error.Type, out.Error.Message)
	}
	return out.Data, nil
}
