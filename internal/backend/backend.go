// Package backend talks to the stats service. Two calls exist: fetchData,
// which resolves a detected game to displayable statistics, and reportError,
// which forwards unexpected failures and is strictly fire-and-forget.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/playsense/storewatch/internal/fault"
)

// Config for creating a Client.
type Config struct {
	// BaseURL is the service endpoint, e.g. "https://stats.example.com/api".
	BaseURL string
	// Timeout bounds one attempt. Default: 10s.
	Timeout time.Duration
	// RetryMax bounds retries per request. Default: 3.
	RetryMax int
	// RetryWaitMin/Max shape the backoff between attempts.
	// Defaults: 250ms / 2s.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       *slog.Logger
}

// Client is the HTTP client for the stats service.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// GameData is the displayable result for one title.
type GameData struct {
	Title         string `json:"title"`
	MainStory     string `json:"main_story,omitempty"`
	MainPlusExtra string `json:"main_plus_extra,omitempty"`
	Completionist string `json:"completionist,omitempty"`
	DetailURL     string `json:"detail_url,omitempty"`
}

// ErrorReport carries one unexpected failure to the service.
type ErrorReport struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	URL     string `json:"url,omitempty"`
	At      int64  `json:"at"` // epoch milliseconds
}

type fetchRequest struct {
	Action     string `json:"action"`
	Title      string `json:"title"`
	Identifier string `json:"identifier,omitempty"`
	PageType   string `json:"pageType,omitempty"`
}

type fetchResponse struct {
	Success bool      `json:"success"`
	Data    *GameData `json:"data,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type reportRequest struct {
	Action string      `json:"action"`
	Report ErrorReport `json:"report"`
}

// NewClient creates a Client with retrying transport.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 250 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = log.New(io.Discard, "", 0)

	return &Client{
		baseURL: cfg.BaseURL,
		http:    rc,
		logger:  cfg.Logger,
	}
}

// FetchData resolves title/identifier to displayable statistics. Transport
// failures, non-2xx statuses and service-level refusals all come back as a
// BackendRequestFailed fault so the caller shows one consistent message.
func (c *Client) FetchData(ctx context.Context, title, identifier, pageType string) (*GameData, error) {
	body := fetchRequest{
		Action:     "fetchData",
		Title:      title,
		Identifier: identifier,
		PageType:   pageType,
	}

	var resp fetchResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return nil, fault.Backend(err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return nil, fault.Backend(fmt.Errorf("backend: %s", msg))
	}
	if resp.Data == nil {
		return nil, nil
	}
	return resp.Data, nil
}

// ReportError forwards rec to the service. Delivery failures are logged at
// debug and swallowed; error reporting must never become an error source.
func (c *Client) ReportError(ctx context.Context, rec ErrorReport) {
	if rec.At == 0 {
		rec.At = time.Now().UnixMilli()
	}
	var resp fetchResponse
	if err := c.post(ctx, reportRequest{Action: "reportError", Report: rec}, &resp); err != nil {
		c.logger.Debug("backend: error report not delivered", "error", err)
	}
}

func (c *Client) post(ctx context.Context, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, res.Body)
		return fmt.Errorf("backend: status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
