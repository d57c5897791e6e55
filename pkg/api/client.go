// Package api is a small client for the REST side of the API server: the
// one-shot fetch path for resources and CSRF-protected mutations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/pkg/protocol"
)

const (
	// CSRFCookie holds the token issued by the server.
	CSRFCookie = "csrftoken"
	// CSRFHeader echoes the token on state-changing requests.
	CSRFHeader = "X-CSRFToken"
	// CSRFPath issues a fresh token cookie.
	CSRFPath = "/csrf"
)

// Options configure a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// Jar is shared with the websocket dial so both carry the session.
	Jar    http.CookieJar
	Logger *logrus.Entry
}

// Client talks to the REST API.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	logger     *logrus.Entry
}

// New creates a Client. A cookie jar is created when none is given.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid API base URL").WithDetail("api_url", opts.BaseURL)
	}
	jar := opts.Jar
	if jar == nil {
		jar, _ = cookiejar.New(nil)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("api")
	}
	return &Client{
		base:       base,
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
		logger:     logger,
	}, nil
}

// Jar returns the cookie jar used for every request.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ResourcePath is the REST path of one resource.
func ResourcePath(res protocol.Resource) string {
	return "/api/" + string(res.Type) + "/" + url.PathEscape(res.UUID)
}

func (c *Client) url(path string) string {
	return c.base.String() + path
}

func (c *Client) csrfToken() string {
	for _, ck := range c.httpClient.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookie {
			return ck.Value
		}
	}
	return ""
}

// EnsureCSRF fetches a CSRF cookie unless one is already held.
func (c *Client) EnsureCSRF(ctx context.Context) error {
	if c.csrfToken() != "" {
		return nil
	}
	resp, body, err := c.do(ctx, http.MethodGet, CSRFPath, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return errors.HTTPStatus(http.MethodGet, c.url(CSRFPath), resp.StatusCode).WithDetail("body", string(body))
	}
	if c.csrfToken() == "" {
		return errors.New(errors.ErrCodeHTTPStatus, "server did not issue a CSRF cookie")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(CSRFHeader, token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeTransportClosed, "request failed").
			WithDetail("method", method).WithDetail("url", c.url(path))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeTransportClosed, "failed to read response")
	}
	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("API request")
	return resp, data, nil
}

// Get fetches path and returns its JSON body, or nil when the server answers
// 404.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, errors.HTTPStatus(http.MethodGet, c.url(path), resp.StatusCode)
	}
	return body, nil
}

func (c *Client) mutate(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	if err := c.EnsureCSRF(ctx); err != nil {
		return nil, err
	}
	resp, data, err := c.do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, errors.HTTPStatus(method, c.url(path), resp.StatusCode).WithDetail("body", string(data))
	}
	return data, nil
}

// Put replaces the document at path.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.mutate(ctx, http.MethodPut, path, body)
}

// Post creates a document under path.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.mutate(ctx, http.MethodPost, path, body)
}

// Delete removes the document at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.mutate(ctx, http.MethodDelete, path, nil)
	return err
}

// List returns the uuids of every resource of type t.
func (c *Client) List(ctx context.Context, t protocol.ResourceType) ([]string, error) {
	var ids []string
	body, err := c.Get(ctx, "/api/"+string(t))
	if err != nil || body == nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolDecode, "failed to decode resource list")
	}
	return ids, nil
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) bool {
	resp, _, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err == nil && resp.StatusCode == http.StatusOK
}

// Fetch decodes the document at path into a T. It returns (nil, nil) on 404.
func Fetch[T any](ctx context.Context, c *Client, path string) (*T, error) {
	body, err := c.Get(ctx, path)
	if err != nil || body == nil {
		return nil, err
	}
	v := new(T)
	if err := json.Unmarshal(body, v); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeProtocolDecode, "failed to decode response").WithDetail("path", path)
	}
	return v, nil
}

// Getter adapts the client to the fetch function a resource cache expects.
func Getter[T any](c *Client, t protocol.ResourceType) func(ctx context.Context, uuid string) (*T, error) {
	return func(ctx context.Context, uuid string) (*T, error) {
		return Fetch[T](ctx, c, ResourcePath(protocol.Resource{Type: t, UUID: uuid}))
	}
}
