// Package vtscan submits artifacts to the VirusTotal v3 API and polls for
// their analysis verdicts within a bounded time budget.
package vtscan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// DefaultBaseURL is the production VirusTotal v3 endpoint.
const DefaultBaseURL = "https://www.virustotal.com/api/v3"

// ErrNotReady is returned while the remote analysis is still queued or the
// API is rate limiting. It consumes a polling attempt but is not fatal.
var ErrNotReady = errors.New("analysis not ready")

// EngineVerdict is one antivirus engine's verdict within a report.
type EngineVerdict struct {
	Category string  `json:"category"`
	Result   *string `json:"result"`
}

// Stats aggregates engine verdicts by category.
type Stats struct {
	Harmless   int `json:"harmless"`
	Malicious  int `json:"malicious"`
	Undetected int `json:"undetected"`
}

// Report is a decoded analysis verdict.
type Report struct {
	Status  string
	Stats   Stats
	Results map[string]EngineVerdict
	SHA256  string
}

// Completed reports whether the remote analysis finished.
func (r Report) Completed() bool { return r.Status == "completed" }

// ClientConfig holds API connection settings.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the VirusTotal v3 REST API.
type Client struct {
	cfg   ClientConfig
	httpc *http.Client
}

// NewClient builds a VirusTotal client. BaseURL defaults to the production
// endpoint.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}
}

// Submit uploads an artifact for scanning and returns the remote analysis id.
func (c *Client) Submit(ctx context.Context, fileName string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write upload payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("x-apikey", c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit sample: %w", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("submit sample: unexpected status %s", resp.Status)
	}

	var decoded struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if decoded.Data.ID == "" {
		return "", fmt.Errorf("submit response carried no analysis id")
	}
	return decoded.Data.ID, nil
}

// Analysis fetches the current verdict for a submitted sample. A 429 means
// the API is throttling and surfaces as ErrNotReady.
func (c *Client) Analysis(ctx context.Context, analysisID string) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/analyses/"+analysisID, nil)
	if err != nil {
		return Report{}, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("x-apikey", c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("fetch analysis: %w", err)
	}
	defer drainClose(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		return Report{}, ErrNotReady
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Report{}, fmt.Errorf("fetch analysis: unexpected status %s", resp.Status)
	}

	var decoded struct {
		Data struct {
			Attributes struct {
				Status  string                   `json:"status"`
				Stats   Stats                    `json:"stats"`
				Results map[string]EngineVerdict `json:"results"`
			} `json:"attributes"`
		} `json:"data"`
		Meta struct {
			FileInfo struct {
				SHA256 string `json:"sha256"`
			} `json:"file_info"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Report{}, fmt.Errorf("decode analysis response: %w", err)
	}

	return Report{
		Status:  decoded.Data.Attributes.Status,
		Stats:   decoded.Data.Attributes.Stats,
		Results: decoded.Data.Attributes.Results,
		SHA256:  decoded.Meta.FileInfo.SHA256,
	}, nil
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
