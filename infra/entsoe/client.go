package entsoe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/mtkallio/spotcharge/core/market"
	"github.com/mtkallio/spotcharge/infra/logger"
)

// Config holds the connection parameters for the ENTSO-E transparency API.
type Config struct {
	APIURL string `json:"api_url"`
	Token  string `json:"token"`
	// CacheDir enables on-disk caching of fetched documents when set.
	// Day-ahead prices never change once published, so a cached day is
	// authoritative.
	CacheDir string `json:"cache_dir"`
	// Zones maps additional bidding zone codes to EIC area codes,
	// extending the built-in table.
	Zones map[string]string `json:"zones"`
}

// SetDefaults applies sane defaults. The API token falls back to the
// ENTSOE_API_TOKEN environment variable.
func (c *Config) SetDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://web-api.tp.entsoe.eu/api"
	}
	if c.Token == "" {
		c.Token = os.Getenv("ENTSOE_API_TOKEN")
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("entsoe token is required (config or ENTSOE_API_TOKEN)")
	}
	return nil
}

// EIC area codes for common Nordic and Baltic bidding zones.
var defaultZones = map[string]string{
	"FI":  "10YFI-1--------U",
	"EE":  "10Y1001A1001A39I",
	"LV":  "10YLV-1001A00074",
	"LT":  "10YLT-1001A0008Q",
	"SE3": "10Y1001A1001A46L",
	"SE4": "10Y1001A1001A47J",
	"DK1": "10YDK-1--------W",
	"DK2": "10YDK-2--------M",
}

// Client fetches day-ahead prices from the ENTSO-E transparency platform.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient creates an ENTSO-E API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  logger.New("entsoe"),
	}
}

// Fetch retrieves the day-ahead price curve for the market day starting at
// local midnight `day` in the given bidding zone. Interval timestamps are
// returned in the day's location.
func (c *Client) Fetch(ctx context.Context, day time.Time, zone string) ([]market.PriceInterval, error) {
	domain, err := c.domain(zone)
	if err != nil {
		return nil, err
	}
	doc, err := c.document(ctx, day, zone, domain)
	if err != nil {
		return nil, err
	}
	intervals, err := parseDocument(doc, day.Location())
	if err != nil {
		return nil, err
	}
	// The API is queried for exactly the day, but trim defensively so a
	// wider document cannot leak neighbouring intervals into the series.
	dayEnd := day.AddDate(0, 0, 1)
	var out []market.PriceInterval
	for _, ivl := range intervals {
		if !ivl.Start.Before(day) && !ivl.End().After(dayEnd) {
			out = append(out, ivl)
		}
	}
	return out, nil
}

func (c *Client) domain(zone string) (string, error) {
	if d, ok := c.cfg.Zones[zone]; ok {
		return d, nil
	}
	if d, ok := defaultZones[zone]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unknown bidding zone %q", zone)
}

// document returns the raw XML for the day, from cache when enabled.
func (c *Client) document(ctx context.Context, day time.Time, zone, domain string) ([]byte, error) {
	var cachePath string
	if c.cfg.CacheDir != "" {
		cachePath = filepath.Join(c.cfg.CacheDir, fmt.Sprintf("%s-%s.xml", zone, day.Format("2006-01-02")))
		if data, err := os.ReadFile(cachePath); err == nil {
			c.log.Debugf("cache hit %s", cachePath)
			return data, nil
		}
	}
	data, err := c.get(ctx, day, domain)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := os.MkdirAll(c.cfg.CacheDir, 0o755); err == nil {
			if err := os.WriteFile(cachePath, data, 0o644); err != nil {
				c.log.Warnf("write cache %s: %v", cachePath, err)
			}
		}
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, day time.Time, domain string) ([]byte, error) {
	start := day.UTC().Format("2006-01-02T15:04Z")
	end := day.AddDate(0, 0, 1).UTC().Format("2006-01-02T15:04Z")

	params := url.Values{}
	params.Set("securityToken", c.cfg.Token)
	params.Set("documentType", "A44")
	params.Set("TimeInterval", start+"/"+end)
	params.Set("in_Domain", domain)
	params.Set("out_Domain", domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request day-ahead prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, excerpt(body))
	}
	return body, nil
}

func excerpt(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
