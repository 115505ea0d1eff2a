// Package zap drives an OWASP ZAP daemon through its JSON API.
package zap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-risk/internal/domain/scans"
)

// Client implements domain.Engine.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// apiError is the body ZAP returns for a rejected call.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, component, kind, name string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/JSON/%s/%s/%s/", c.BaseURL, component, kind, name)
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("X-ZAP-API-Key", c.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Message != "" {
			return fmt.Errorf("%s/%s: %s (%s)", component, name, ae.Message, ae.Code)
		}
		return fmt.Errorf("%s/%s: http %d", component, name, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s/%s: decode: %w", component, name, err)
	}
	return nil
}

// Open makes ZAP request the target once so it enters the site tree.
func (c *Client) Open(ctx context.Context, target string) error {
	return c.call(ctx, "core", "action", "accessUrl", url.Values{
		"url":             {target},
		"followRedirects": {"true"},
	}, nil)
}

type scanStarted struct {
	Scan string `json:"scan"`
}

type scanStatus struct {
	Status string `json:"status"`
}

func (c *Client) StartSpider(ctx context.Context, target string) (string, error) {
	var out scanStarted
	if err := c.call(ctx, "spider", "action", "scan", url.Values{"url": {target}}, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

func (c *Client) SpiderStatus(ctx context.Context, jobID string) (int, error) {
	return c.status(ctx, "spider", jobID)
}

func (c *Client) StartActiveScan(ctx context.Context, target string) (string, error) {
	var out scanStarted
	if err := c.call(ctx, "ascan", "action", "scan", url.Values{"url": {target}}, &out); err != nil {
		return "", err
	}
	return out.Scan, nil
}

func (c *Client) ActiveScanStatus(ctx context.Context, jobID string) (int, error) {
	return c.status(ctx, "ascan", jobID)
}

func (c *Client) status(ctx context.Context, component, jobID string) (int, error) {
	var out scanStatus
	if err := c.call(ctx, component, "view", "status", url.Values{"scanId": {jobID}}, &out); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out.Status))
	if err != nil {
		return 0, fmt.Errorf("%s/status: bad progress %q", component, out.Status)
	}
	return n, nil
}

type zapAlert struct {
	Alert       string `json:"alert"`
	Name        string `json:"name"`
	Risk        string `json:"risk"`
	Confidence  string `json:"confidence"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
}

// Alerts lists every alert ZAP holds for URLs under target.
func (c *Client) Alerts(ctx context.Context, target string) ([]domain.EngineAlert, error) {
	var out struct {
		Alerts []zapAlert `json:"alerts"`
	}
	if err := c.call(ctx, "core", "view", "alerts", url.Values{"baseurl": {target}}, &out); err != nil {
		return nil, err
	}
	alerts := make([]domain.EngineAlert, 0, len(out.Alerts))
	for _, a := range out.Alerts {
		name := a.Alert
		if name == "" {
			name = a.Name
		}
		alerts = append(alerts, domain.EngineAlert{
			Name:        name,
			Risk:        a.Risk,
			Confidence:  a.Confidence,
			Description: a.Description,
			Solution:    a.Solution,
		})
	}
	return alerts, nil
}

// Version is used by the health check.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, "core", "view", "version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// Check implements middleware.HealthChecker.
func (c *Client) Check(ctx context.Context) error {
	_, err := c.Version(ctx)
	return err
}
