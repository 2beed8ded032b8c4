// Package flaresolverr fetches pages through a FlareSolverr instance when the
// resolver site answers with a Cloudflare challenge.
package flaresolverr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"stremio-sos-go/pkg/logging"
)

// Cookie represents a cookie from FlareSolverr response.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Expires  int64  `json:"expires"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// Solution contains the result of a successful FlareSolverr request.
type Solution struct {
	URL       string   `json:"url"`
	Status    int      `json:"status"`
	Response  string   `json:"response"`
	Cookies   []Cookie `json:"cookies"`
	UserAgent string   `json:"userAgent"`
}

// Response is the full response from FlareSolverr API.
type Response struct {
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Solution Solution `json:"solution"`
}

// Request is the request body for FlareSolverr API.
type Request struct {
	Cmd        string   `json:"cmd"`
	URL        string   `json:"url"`
	MaxTimeout int      `json:"maxTimeout"`
	Cookies    []Cookie `json:"cookies,omitempty"`
}

// Page is a detail page fetched through FlareSolverr.
type Page struct {
	URL       string
	Status    int
	HTML      string
	UserAgent string
}

// DefaultTimeout is the solver's maxTimeout when none is configured.
const DefaultTimeout = 12 * time.Second

// solverOverhead is added to maxTimeout for the HTTP round trip to the solver.
const solverOverhead = 2 * time.Second

// Client is a FlareSolverr API client. Clearance cookies are remembered per
// host and replayed on the next request to the same host.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger

	mu      sync.Mutex
	cookies map[string][]Cookie
}

// NewClient creates a new FlareSolverr client. An empty baseURL yields a
// client that reports itself unconfigured.
func NewClient(baseURL string, timeout time.Duration, log *logging.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout + solverOverhead,
		},
		log:     log.WithComponent("flaresolverr"),
		cookies: make(map[string][]Cookie),
	}
}

// IsConfigured returns true if the client is properly configured.
func (c *Client) IsConfigured() bool {
	return c != nil && c.baseURL != ""
}

// FetchPage GETs targetURL through FlareSolverr and returns the rendered page.
// A non-2xx status reported by the solver is an error.
func (c *Client) FetchPage(ctx context.Context, targetURL string) (*Page, error) {
	host := hostOf(targetURL)

	c.mu.Lock()
	cookies := c.cookies[host]
	c.mu.Unlock()

	resp, err := c.Get(ctx, targetURL, cookies)
	if err != nil {
		return nil, err
	}

	sol := resp.Solution
	if len(sol.Cookies) > 0 {
		c.mu.Lock()
		c.cookies[host] = sol.Cookies
		c.mu.Unlock()
	}

	if sol.Status != 0 && (sol.Status < 200 || sol.Status > 299) {
		return nil, fmt.Errorf("page returned status %d via FlareSolverr", sol.Status)
	}

	finalURL := sol.URL
	if finalURL == "" {
		finalURL = targetURL
	}
	return &Page{
		URL:       finalURL,
		Status:    sol.Status,
		HTML:      sol.Response,
		UserAgent: sol.UserAgent,
	}, nil
}

// Get sends a raw request.get command.
func (c *Client) Get(ctx context.Context, targetURL string, existingCookies []Cookie) (*Response, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("FlareSolverr is not configured")
	}

	c.log.Debug("fetching URL via FlareSolverr", "url", targetURL)

	req := Request{
		Cmd:        "request.get",
		URL:        targetURL,
		MaxTimeout: int(c.timeout.Milliseconds()),
		Cookies:    existingCookies,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FlareSolverr returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fsResp Response
	if err := json.Unmarshal(respBody, &fsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if fsResp.Status != "ok" {
		return nil, fmt.Errorf("FlareSolverr error: %s", fsResp.Message)
	}

	c.log.Debug("FlareSolverr request successful",
		"url", targetURL,
		"status", fsResp.Solution.Status,
		"cookies", len(fsResp.Solution.Cookies),
		"response_length", len(fsResp.Solution.Response))

	return &fsResp, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
