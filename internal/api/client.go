// Package api is the REST client for the scanning backend. It is the only
// place scanboard talks to the network; every other package depends on the
// narrow interfaces it satisfies.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CosmoTheDev/scanboard/internal/config"
	"github.com/CosmoTheDev/scanboard/internal/metrics"
	"github.com/CosmoTheDev/scanboard/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// SessionCookie is the cookie the backend issues on login.
const SessionCookie = "auth_token"

const maxBodyBytes = 8 << 20

// Client is a thin HTTP client for the scanning backend.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer

	mu      sync.RWMutex
	session string
}

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	URL       string
	Token     string
	Session   string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

// New returns a Client configured from cfg, carrying the stored session token.
func New(cfg config.APIConfig, session string) *Client {
	return NewWithOptions(Options{
		URL:       cfg.URL,
		Token:     cfg.Token,
		Session:   session,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		Burst:     cfg.Burst,
	})
}

// NewWithOptions builds a Client from explicit options.
func NewWithOptions(opts Options) *Client {
	base := strings.TrimRight(opts.URL, "/")
	if base == "" {
		base = config.DefaultAPIURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if opts.Token != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
			Base:   transport,
		}
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		tracer:  otel.Tracer("github.com/CosmoTheDev/scanboard/internal/api"),
		session: opts.Session,
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Session returns the current session token ("" when not logged in).
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// SetSession replaces the session token attached to requests.
func (c *Client) SetSession(token string) {
	c.mu.Lock()
	c.session = token
	c.mu.Unlock()
}

// Login exchanges the admin password for a session token, which is stored on
// the client and returned so callers can persist it.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	res, err := c.send(ctx, opLogin, http.MethodPost, "/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer res.Body.Close() //nolint:errcheck
	if err := checkStatus(opLogin, res); err != nil {
		return "", err
	}
	for _, ck := range res.Cookies() {
		if ck.Name == SessionCookie && ck.Value != "" {
			c.SetSession(ck.Value)
			return ck.Value, nil
		}
	}
	return "", fmt.Errorf("login: backend did not issue a %s cookie", SessionCookie)
}

// Logout invalidates the session on the backend and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/api/logout", nil)
	c.SetSession("")
	return err
}

// Health calls GET /api/health.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/api/health", nil)
	return err
}

// ListFindings returns the full finding collection.
func (c *Client) ListFindings(ctx context.Context) ([]models.Finding, error) {
	var out []models.Finding
	if err := c.getJSON(ctx, "list_findings", "/api/findings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFinding returns one finding. A missing id matches ErrNotFound.
func (c *Client) GetFinding(ctx context.Context, id int64) (*models.Finding, error) {
	var out models.Finding
	if err := c.getJSON(ctx, "get_finding", findingPath(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateFindingState requests a state change and returns the backend's
// updated representation of the finding.
func (c *Client) UpdateFindingState(ctx context.Context, id int64, state models.FindingState) (*models.Finding, error) {
	body, err := json.Marshal(map[string]string{"state": string(state)})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	b, err := c.do(ctx, "update_finding_state", http.MethodPatch, findingPath(id)+"/status", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out models.Finding
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// DeleteFinding removes a finding permanently.
func (c *Client) DeleteFinding(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete_finding", http.MethodDelete, findingPath(id), nil)
	return err
}

// Stats returns the dashboard snapshot (counters, recent jobs, top critical findings).
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var out models.Stats
	if err := c.getJSON(ctx, "stats", "/api/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LaunchResponse is returned by POST /api/scan.
type LaunchResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// LaunchScan submits a new scan.
func (c *Client) LaunchScan(ctx context.Context, req models.ScanRequest) (*LaunchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	b, err := c.do(ctx, "launch_scan", http.MethodPost, "/api/scan", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out LaunchResponse
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}
	return &out, nil
}

// StopScan asks the backend to stop a running job. A job that already
// finished is rejected with an *APIError.
func (c *Client) StopScan(ctx context.Context, jobID int64) error {
	_, err := c.do(ctx, "stop_scan", http.MethodPost, "/api/scan/"+strconv.FormatInt(jobID, 10)+"/stop", nil)
	return err
}

// Templates returns the template catalog.
func (c *Client) Templates(ctx context.Context) ([]models.Template, error) {
	var out []models.Template
	if err := c.getJSON(ctx, "templates", "/api/templates", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TemplateContent returns the raw text of one catalog template.
func (c *Client) TemplateContent(ctx context.Context, path string) (string, error) {
	b, err := c.do(ctx, "template_content", http.MethodGet, "/api/templates/content?path="+url.QueryEscape(path), nil)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Export streams the backend's CSV export of all findings into w.
func (c *Client) Export(ctx context.Context, w io.Writer) (int64, error) {
	res, err := c.send(ctx, "export", http.MethodGet, "/api/export", nil)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close() //nolint:errcheck
	if err := checkStatus("export", res); err != nil {
		return 0, err
	}
	n, err := io.Copy(w, res.Body)
	if err != nil {
		return n, fmt.Errorf("export: reading response: %w", err)
	}
	return n, nil
}

func findingPath(id int64) string {
	return "/api/findings/" + strconv.FormatInt(id, 10)
}

func (c *Client) getJSON(ctx context.Context, op, path string, dest any) error {
	b, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// do executes a request and returns the response body.
// Non-2xx responses are converted to *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader) ([]byte, error) {
	res, err := c.send(ctx, op, method, path, body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Op: op, URL: c.baseURL + path, Err: fmt.Errorf("reading response: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{Op: op, StatusCode: res.StatusCode, Message: errorMessage(b)}
	}
	return b, nil
}

// send performs the round trip with auth, throttling, tracing and metrics.
// The caller owns the response body.
func (c *Client) send(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	start := time.Now()
	res, err := c.roundTrip(ctx, op, method, path, body)
	metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "transport_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case res.StatusCode >= 300:
		outcome = strconv.Itoa(res.StatusCode)
		span.SetStatus(codes.Error, res.Status)
	}
	if res != nil {
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	}
	metrics.APIRequests.WithLabelValues(op, outcome).Inc()
	return res, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body io.Reader) (*http.Response, error) {
	target := c.baseURL + path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, URL: target, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s := c.Session(); s != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: s})
	}

	res, err := c.http.Do(req) // #nosec G107 -- backend URL is operator-configured
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	return res, nil
}

func checkStatus(op string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	return &APIError{Op: op, StatusCode: res.StatusCode, Message: errorMessage(b)}
}

// errorMessage extracts a human-readable error from a response body.
func errorMessage(b []byte) string {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &apiErr); err == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		return apiErr.Message
	}
	text := strings.TrimSpace(string(b))
	if len(text) > 200 || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
