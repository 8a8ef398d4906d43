// Package api is the typed client for the Subscribr backend REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/subscribr/web/internal/logging"
	"github.com/subscribr/web/internal/models"
)

const (
	maxResponseBody = 4 << 20
	maxErrorBody    = 1 << 10
)

// Client issues REST calls against a single backend base URL.
type Client struct {
	baseURL string
	routes  Routes
	http    *http.Client
	timeout time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRoutes selects the backend route set.
func WithRoutes(routes Routes) Option {
	return func(c *Client) {
		c.routes = routes
	}
}

// WithTimeout bounds every REST call. Zero leaves calls bounded only by the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// New constructs a Client for the absolute http(s) baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be an absolute http(s) url", baseURL)
	}
	u.RawQuery = ""
	u.Fragment = ""

	c := &Client{
		baseURL: strings.TrimSuffix(u.String(), "/"),
		routes:  CurrentRoutes,
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateUser handles POST /users/create.
func (c *Client) CreateUser(ctx context.Context, username string) (models.User, error) {
	const op = "create user"
	if strings.TrimSpace(username) == "" {
		return models.User{}, fmt.Errorf("%s: username: %w", op, ErrEmptyArgument)
	}

	var resp userSchema
	if err := c.do(ctx, op, http.MethodPost, c.routes.CreateUser, createUserRequest{Username: username}, &resp); err != nil {
		return models.User{}, err
	}
	return resp.parse(op)
}

// GetUser handles GET /users/{id}.
func (c *Client) GetUser(ctx context.Context, id string) (models.Profile, error) {
	const op = "get user"
	if strings.TrimSpace(id) == "" {
		return models.Profile{}, fmt.Errorf("%s: id: %w", op, ErrEmptyArgument)
	}

	var resp profileSchema
	if err := c.do(ctx, op, http.MethodGet, expand(c.routes.User, id, ""), nil, &resp); err != nil {
		return models.Profile{}, err
	}
	return resp.parse(op)
}

// ListUsers handles GET /users.
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	const op = "list users"

	var resp []userSchema
	if err := c.do(ctx, op, http.MethodGet, c.routes.Users, nil, &resp); err != nil {
		return nil, err
	}
	return parseUsers(op, resp)
}

// Subscriptions returns the users id is subscribed to, from the dedicated
// endpoint when the route set has one and from the profile otherwise.
func (c *Client) Subscriptions(ctx context.Context, id string) ([]models.User, error) {
	const op = "list subscriptions"
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%s: id: %w", op, ErrEmptyArgument)
	}

	if c.routes.Subscriptions == "" {
		profile, err := c.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return profile.Subscriptions, nil
	}

	var resp []userSchema
	if err := c.do(ctx, op, http.MethodGet, expand(c.routes.Subscriptions, id, ""), nil, &resp); err != nil {
		return nil, err
	}
	return parseUsers(op, resp)
}

// PostVideo starts a video upload on behalf of id. Completion arrives later on the event stream.
func (c *Client) PostVideo(ctx context.Context, id string, post models.VideoPost) error {
	const op = "post video"
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s: id: %w", op, ErrEmptyArgument)
	}
	if strings.TrimSpace(post.Name) == "" {
		return fmt.Errorf("%s: name: %w", op, ErrEmptyArgument)
	}
	if post.VideoUploaderID == "" {
		post.VideoUploaderID = id
	}

	return c.do(ctx, op, http.MethodPost, expand(c.routes.PostVideo, id, ""), post, nil)
}

// Subscribe creates the subscription edge id -> target.
func (c *Client) Subscribe(ctx context.Context, id, target string) error {
	return c.edge(ctx, "subscribe", c.routes.Subscribe, id, target)
}

// Unsubscribe removes the subscription edge id -> target.
func (c *Client) Unsubscribe(ctx context.Context, id, target string) error {
	return c.edge(ctx, "unsubscribe", c.routes.Unsubscribe, id, target)
}

// EventsURL returns the server-push endpoint for id.
func (c *Client) EventsURL(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("events url: id: %w", ErrEmptyArgument)
	}
	return c.baseURL + expand(c.routes.Events, id, ""), nil
}

// HTTPClient exposes the transport so the event stream shares it.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func (c *Client) edge(ctx context.Context, op, template, id, target string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s: id: %w", op, ErrEmptyArgument)
	}
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("%s: target: %w", op, ErrEmptyArgument)
	}
	return c.do(ctx, op, http.MethodPost, expand(template, id, target), nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := logging.StartSpan(ctx, "api."+strings.ReplaceAll(op, " ", "_"))
	err := c.roundTrip(ctx, op, method, path, body, out)
	span.End(err)
	return err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := logging.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	limited := io.LimitReader(resp.Body, maxResponseBody)
	if out == nil {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}

	if err := json.NewDecoder(limited).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w: empty body", op, ErrMalformedResponse)
		}
		return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
	}
	return nil
}
