// Package client talks to a running skillhub server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillhub/pkg/importer"
	"github.com/jingkaihe/skillhub/pkg/logger"
	"github.com/jingkaihe/skillhub/pkg/pipeline"
	"github.com/jingkaihe/skillhub/pkg/registry"
	"github.com/jingkaihe/skillhub/pkg/reviewlog"
	"github.com/jingkaihe/skillhub/pkg/submission"
	"github.com/jingkaihe/skillhub/pkg/types/skills"
)

const (
	DefaultAttempts   uint = 3
	DefaultRetryDelay      = 200 * time.Millisecond
	DefaultTimeout         = 30 * time.Second
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("skill not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int      `json:"status"`
	Message string   `json:"error"`
	Fields  []string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s (%s)", e.Status, e.Message, strings.Join(e.Fields, "; "))
}

// Client is an HTTP API client. Create it with New.
type Client struct {
	base     *url.URL
	http     *http.Client
	attempts uint
	delay    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRetry sets how often idempotent requests are attempted.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(cl *Client) {
		cl.attempts = max(attempts, 1)
		cl.delay = delay
	}
}

// New creates a client for the server at base, e.g. http://localhost:8080.
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid server URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid server URL %q, expected http or https", base)
	}

	c := &Client{
		base:     u,
		http:     &http.Client{Timeout: DefaultTimeout},
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListResponse mirrors the body of GET /api/skills.
type ListResponse struct {
	Skills []skills.Skill   `json:"skills"`
	Total  int              `json:"total"`
	Counts *registry.Counts `json:"counts,omitempty"`
}

// Marketplace lists approved skills matching q.
func (c *Client) Marketplace(ctx context.Context, q registry.Query) (ListResponse, error) {
	params := url.Values{"view": {"marketplace"}}
	setIf(params, "q", q.Search)
	setIf(params, "category", q.Category)
	setIf(params, "tag", q.Tag)
	setIf(params, "sort", string(q.Sort))

	var resp ListResponse
	err := c.do(ctx, http.MethodGet, "/api/skills", params, nil, &resp)
	return resp, err
}

// Admin lists skills with status ("all" or empty for every skill) plus the
// per-status counts.
func (c *Client) Admin(ctx context.Context, status string) (ListResponse, error) {
	params := url.Values{"view": {"admin"}}
	setIf(params, "status", status)

	var resp ListResponse
	err := c.do(ctx, http.MethodGet, "/api/skills", params, nil, &resp)
	return resp, err
}

// Get fetches one skill. It returns ErrNotFound for unknown ids.
func (c *Client) Get(ctx context.Context, id string) (skills.Skill, error) {
	var s skills.Skill
	err := c.do(ctx, http.MethodGet, "/api/skills/"+url.PathEscape(id), nil, nil, &s)
	return s, err
}

// Submit creates a skill from req.
func (c *Client) Submit(ctx context.Context, req submission.Request) (skills.Skill, error) {
	var s skills.Skill
	err := c.do(ctx, http.MethodPost, "/api/skills", nil, req, &s)
	return s, err
}

// UpdateStatus reviews a skill. The server must be in the admin role.
func (c *Client) UpdateStatus(ctx context.Context, id string, status skills.Status, notes *string) (skills.Skill, error) {
	body := struct {
		Status skills.Status `json:"status"`
		Notes  *string       `json:"notes,omitempty"`
	}{status, notes}

	var s skills.Skill
	err := c.do(ctx, http.MethodPost, "/api/skills/"+url.PathEscape(id)+"/status", nil, body, &s)
	return s, err
}

// Download counts a download and returns the skill.
func (c *Client) Download(ctx context.Context, id string) (skills.Skill, error) {
	var s skills.Skill
	err := c.do(ctx, http.MethodPost, "/api/skills/"+url.PathEscape(id)+"/download", nil, nil, &s)
	return s, err
}

// Stats returns the per-status counts.
func (c *Client) Stats(ctx context.Context) (registry.Counts, error) {
	var counts registry.Counts
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &counts)
	return counts, err
}

// Role returns the server's current viewer role.
func (c *Client) Role(ctx context.Context) (skills.Role, error) {
	var body struct {
		Role skills.Role `json:"role"`
	}
	err := c.do(ctx, http.MethodGet, "/api/role", nil, nil, &body)
	return body.Role, err
}

// SetRole switches the server's viewer role.
func (c *Client) SetRole(ctx context.Context, role skills.Role) error {
	body := struct {
		Role skills.Role `json:"role"`
	}{role}
	return c.do(ctx, http.MethodPut, "/api/role", nil, body, nil)
}

// History lists the review log entries of one skill.
func (c *Client) History(ctx context.Context, id string) ([]reviewlog.Entry, error) {
	var body struct {
		Entries []reviewlog.Entry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/api/skills/"+url.PathEscape(id)+"/history", nil, nil, &body)
	return body.Entries, err
}

// ImportResponse mirrors the body of POST /api/import.
type ImportResponse struct {
	Result *importer.Result      `json:"result"`
	Form   submission.UploadForm `json:"form"`
}

// Import asks the server to fetch a remote skill.
func (c *Client) Import(ctx context.Context, rawURL string) (ImportResponse, error) {
	body := struct {
		URL string `json:"url"`
	}{rawURL}

	var resp ImportResponse
	err := c.do(ctx, http.MethodPost, "/api/import", nil, body, &resp)
	return resp, err
}

// Stages returns the evaluation stage table the server runs.
func (c *Client) Stages(ctx context.Context) ([]pipeline.Stage, error) {
	var body struct {
		Stages []struct {
			ID         string   `json:"id"`
			Label      string   `json:"label"`
			Sublabel   string   `json:"sublabel"`
			SubSteps   []string `json:"subSteps"`
			DurationMS int64    `json:"durationMs"`
		} `json:"stages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/stages", nil, nil, &body); err != nil {
		return nil, err
	}

	stages := make([]pipeline.Stage, len(body.Stages))
	for i, st := range body.Stages {
		stages[i] = pipeline.Stage{
			ID:       st.ID,
			Label:    st.Label,
			Sublabel: st.Sublabel,
			SubSteps: st.SubSteps,
			Duration: time.Duration(st.DurationMS) * time.Millisecond,
		}
	}
	return stages, nil
}

// do sends one request. GETs are retried on transport failures and 5xx
// answers; mutations are sent once.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		payload = data
	}

	u := *c.base
	u.Path += path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	attempts := c.attempts
	if method != http.MethodGet {
		attempts = 1
	}

	return retry.Do(
		func() error {
			return c.send(ctx, method, u.String(), payload, out)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).Debug("retrying request")
		}),
	)
}

func (c *Client) send(ctx context.Context, method, u string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return retry.Unrecoverable(errors.Wrap(err, "invalid request"))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status != http.StatusNotImplemented
	}
	return true
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
