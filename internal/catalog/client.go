// Package catalog looks up anime metadata through the Jikan v4 REST
// API (an unofficial MyAnimeList frontend). Responses are trimmed to
// the fields the bot renders.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	logx "wabot/pkg/logx"
)

const defaultBaseURL = "https://api.jikan.moe/v4"

type Config struct {
	// BaseURL overrides the Jikan endpoint, mainly for tests.
	BaseURL string
	// Timeout bounds each API call. Default 15s.
	Timeout time.Duration
}

type Client struct {
	base string
	hc   *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base: cfg.BaseURL,
		hc:   &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Anime is the subset of a Jikan anime object the bot presents.
type Anime struct {
	MALID    int     `json:"mal_id"`
	Title    string  `json:"title"`
	Type     string  `json:"type"`
	Episodes int     `json:"episodes"`
	Score    float64 `json:"score"`
	Status   string  `json:"status"`
	Synopsis string  `json:"synopsis"`
	URL      string  `json:"url"`
	Genres   []Named `json:"genres"`
	Images   Images  `json:"images"`
}

type Named struct {
	Name string `json:"name"`
}

type Images struct {
	JPG struct {
		ImageURL string `json:"image_url"`
	} `json:"jpg"`
}

// Character is the subset of a Jikan character object the bot presents.
type Character struct {
	MALID     int    `json:"mal_id"`
	Name      string `json:"name"`
	NameKanji string `json:"name_kanji"`
	About     string `json:"about"`
	URL       string `json:"url"`
	Images    Images `json:"images"`
}

// Search returns up to limit matches for query, best match first.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Anime, error) {
	var out struct {
		Data []Anime `json:"data"`
	}
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/anime", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ByID fetches one anime by its MyAnimeList id.
func (c *Client) ByID(ctx context.Context, id int) (*Anime, error) {
	var out struct {
		Data Anime `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Top returns the current top-rated list.
func (c *Client) Top(ctx context.Context, limit int) ([]Anime, error) {
	var out struct {
		Data []Anime `json:"data"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/top/anime", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SeasonNow returns titles airing in the current season.
func (c *Client) SeasonNow(ctx context.Context, limit int) ([]Anime, error) {
	var out struct {
		Data []Anime `json:"data"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/seasons/now", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SearchCharacter returns up to limit character matches for query.
func (c *Client) SearchCharacter(ctx context.Context, query string, limit int) ([]Character, error) {
	var out struct {
		Data []Character `json:"data"`
	}
	q := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/characters", q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jikan: %s returned %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
