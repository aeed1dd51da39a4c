package zaptec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"

	"github.com/mtkallio/spotcharge/core/plan"
	"github.com/mtkallio/spotcharge/infra/logger"
)

// ErrCommandRejected is returned when the Zaptec API refuses a charging
// command.
var ErrCommandRejected = errors.New("charger command rejected")

// Config holds Zaptec cloud API credentials and the target charger. Either
// username/password (OAuth2 password grant) or an API key must be provided.
type Config struct {
	APIURL    string `json:"api_url"`
	AuthURL   string `json:"auth_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	APIKey    string `json:"api_key"`
	ChargerID string `json:"charger_id"`
}

// SetDefaults applies API defaults and environment credential fallbacks
// (ZAPTEC_USERNAME, ZAPTEC_PASSWORD, ZAPTEC_APIKEY).
func (c *Config) SetDefaults() {
	if c.APIURL == "" {
		c.APIURL = "https://api.zaptec.com"
	}
	if c.AuthURL == "" {
		c.AuthURL = c.APIURL + "/oauth/token"
	}
	if c.Username == "" {
		c.Username = os.Getenv("ZAPTEC_USERNAME")
	}
	if c.Password == "" {
		c.Password = os.Getenv("ZAPTEC_PASSWORD")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("ZAPTEC_APIKEY")
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.ChargerID == "" {
		return fmt.Errorf("charger_id is required")
	}
	if c.APIKey == "" && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("either api_key or username and password are required")
	}
	return nil
}

// Zaptec charger command identifiers.
const (
	cmdResumeCharging = 507
	cmdStopCharging   = 506
)

// Client issues charging commands against the Zaptec cloud API. Commands
// carry the charging window so the charger's own scheduler arms the start and
// stop edges; no process needs to stay alive through the window.
type Client struct {
	cfg   Config
	http  *http.Client
	log   logger.Logger
	token *oauth2.Token
}

// NewClient creates a Zaptec API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  logger.New("zaptec"),
	}
}

// StartCharging schedules a charging session covering the block.
func (c *Client) StartCharging(ctx context.Context, b plan.Block) error {
	payload := map[string]string{
		"scheduledFrom": b.Start.Format(time.RFC3339),
		"scheduledTo":   b.End.Format(time.RFC3339),
	}
	return c.sendCommand(ctx, cmdResumeCharging, payload)
}

// StopCharging schedules the end of the session at the block's end.
func (c *Client) StopCharging(ctx context.Context, b plan.Block) error {
	payload := map[string]string{
		"scheduledAt": b.End.Format(time.RFC3339),
	}
	return c.sendCommand(ctx, cmdStopCharging, payload)
}

func (c *Client) sendCommand(ctx context.Context, command int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/chargers/%s/sendCommand/%d", c.cfg.APIURL, c.cfg.ChargerID, command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.setAuthHeader(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send command %d: %w", command, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("%w: command %d status %d: %s", ErrCommandRejected, command, resp.StatusCode, text)
	}
	c.log.Infof("command %d accepted for charger %s", command, c.cfg.ChargerID)
	return nil
}

// setAuthHeader authenticates the request with the API key when configured,
// otherwise with a bearer token from the password grant. Tokens are cached
// until expiry.
func (c *Client) setAuthHeader(ctx context.Context, req *http.Request) error {
	if c.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", c.cfg.APIKey)
		return nil
	}
	if c.token == nil || !c.token.Valid() {
		conf := oauth2.Config{Endpoint: oauth2.Endpoint{TokenURL: c.cfg.AuthURL}}
		tok, err := conf.PasswordCredentialsToken(ctx, c.cfg.Username, c.cfg.Password)
		if err != nil {
			return fmt.Errorf("zaptec token: %w", err)
		}
		c.token = tok
	}
	c.token.SetAuthHeader(req)
	return nil
}
