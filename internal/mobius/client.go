package mobius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the Mobius3D server the tools talk to unless told otherwise.
const DefaultBaseURL = "http://mobius.uwhealth.wisc.edu/"

// DefaultLimit asks the plan list endpoint for effectively every plan in one page.
const DefaultLimit = 99999

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %s", e.Method, e.URL, e.Status)
}

// Client holds an authenticated session against one Mobius3D server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	log     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added
// when the given client has none, since the session lives in a cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the server root the client resolves endpoints against.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(rel string) (string, error) {
	ref, err := url.Parse(rel)
	if err != nil {
		return "", fmt.Errorf("building endpoint %q: %w", rel, err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Login posts the credentials to auth/login. The server's answer is not
// checked: a rejected login only surfaces when a later call fails.
func (c *Client) Login(ctx context.Context, username, password string) error {
	target, err := c.endpoint("auth/login")
	if err != nil {
		return err
	}
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.Debug("login", "status", resp.StatusCode, "user", username)
	return nil
}

// ListPatients fetches up to limit plan-check records grouped by patient,
// most recent first.
func (c *Client) ListPatients(ctx context.Context, limit int) ([]Patient, error) {
	var list PlanList
	rel := "_plan/list?sort=date&descending=1&limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, rel, &list); err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	return list.Patients, nil
}

// PlanDetail fetches the plan-check details of one request.
func (c *Client) PlanDetail(ctx context.Context, requestID string) (*PlanDetail, error) {
	var detail PlanDetail
	rel := "check/details/" + url.PathEscape(requestID) + "?format=json"
	if err := c.getJSON(ctx, rel, &detail); err != nil {
		return nil, fmt.Errorf("fetching details of %s: %w", requestID, err)
	}
	return &detail, nil
}

// PlanFiles lists the data files attached to one request.
func (c *Client) PlanFiles(ctx context.Context, requestID string) ([]File, error) {
	var list fileList
	rel := "check/details/" + url.PathEscape(requestID) + "/data?format=json"
	if err := c.getJSON(ctx, rel, &list); err != nil {
		return nil, fmt.Errorf("listing files of %s: %w", requestID, err)
	}
	return list.Data, nil
}

// Attachment opens the raw bytes of one data file. The caller closes the
// returned reader.
func (c *Client) Attachment(ctx context.Context, requestID, filename string) (io.ReadCloser, error) {
	rel := "check/attachment/" + url.PathEscape(requestID) + "/" + url.PathEscape(filename)
	resp, err := c.get(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("downloading %s of %s: %w", filename, requestID, err)
	}
	return resp.Body, nil
}

// get issues a GET and returns the response when its status is 2xx.
func (c *Client) get(ctx context.Context, rel string) (*http.Response, error) {
	target, err := c.endpoint(rel)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("request", "method", req.Method, "url", target, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{
			Method:     req.Method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, rel string, v any) error {
	resp, err := c.get(ctx, rel)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
