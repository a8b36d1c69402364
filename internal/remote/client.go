// Package remote is the boundary to the remote API: one write call per
// submission, where any 2xx status means the write was accepted.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/agentstation/leadsync/internal/queue"
	"github.com/agentstation/leadsync/pkg/constants"
	"github.com/agentstation/leadsync/pkg/errors"
)

// maxErrorBody bounds how much of a rejection body is kept for logs.
const maxErrorBody = 512

// TokenResolver supplies a fresher credential at delivery time. Returning
// an empty token keeps the one captured with the submission.
type TokenResolver func(ctx context.Context, sub queue.Submission) (string, error)

// Result is the remote API's answer to an accepted write.
type Result struct {
	StatusCode int
	// Record is the JSON body returned by the API, or the submitted payload
	// when the API answered without a JSON body.
	Record json.RawMessage
}

// Deliverer performs the remote write for a submission.
type Deliverer interface {
	Deliver(ctx context.Context, sub queue.Submission) (Result, error)
}

// Client delivers submissions to the remote API.
type Client struct {
	http     *http.Client
	base     *url.URL
	auth     Authenticator
	resolver TokenResolver
	logger   *zerolog.Logger
}

var _ Deliverer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithTransport routes requests through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.http = &http.Client{Timeout: c.http.Timeout, Transport: rt}
		}
	}
}

// WithAuthenticator replaces the default bearer authentication.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) {
		if a != nil {
			c.auth = a
		}
	}
}

// WithTokenResolver consults r for a fresher credential before each delivery.
func WithTokenResolver(r TokenResolver) Option {
	return func(c *Client) {
		c.resolver = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewConfigError("remote", "api_url must be an absolute URL", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	nop := zerolog.Nop()
	c := &Client{
		http:   &http.Client{Timeout: constants.DefaultHTTPTimeout},
		base:   base,
		auth:   &BearerAuth{},
		logger: &nop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Endpoint resolves a target endpoint against the API root.
func (c *Client) Endpoint(target string) (*url.URL, error) {
	rel, err := url.Parse(strings.TrimLeft(target, "/"))
	if err != nil {
		return nil, errors.NewValidationError("targetEndpoint", target, err.Error())
	}
	if rel.Scheme != "" || rel.Host != "" || rel.Opaque != "" || rel.User != nil {
		return nil, errors.NewValidationError("targetEndpoint", target, "must be a path relative to the API root")
	}
	u := c.base.ResolveReference(rel)
	if u.Scheme != c.base.Scheme || u.Host != c.base.Host || !strings.HasPrefix(u.Path, c.base.Path) {
		return nil, errors.NewValidationError("targetEndpoint", target, "escapes the API root")
	}
	return u, nil
}

// Deliver sends sub to the API. Failures are DeliveryErrors; when no
// response was received the error also matches ErrNetworkUnavailable, and
// 401/403 rejections match ErrAuthRejected.
func (c *Client) Deliver(ctx context.Context, sub queue.Submission) (Result, error) {
	endpoint, err := c.Endpoint(sub.TargetEndpoint)
	if err != nil {
		return Result{}, err
	}
	method := sub.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), bytes.NewReader(sub.Payload))
	if err != nil {
		return Result{}, &errors.DeliveryError{SubmissionID: sub.ID, Endpoint: sub.TargetEndpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(constants.IdempotencyHeader, sub.ID)
	c.auth.Apply(req, c.token(ctx, sub))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, &errors.DeliveryError{SubmissionID: sub.ID, Endpoint: sub.TargetEndpoint, Err: ctx.Err()}
		}
		return Result{}, &errors.DeliveryError{
			SubmissionID: sub.ID,
			Endpoint:     sub.TargetEndpoint,
			Err:          errors.NewNetworkError(method, endpoint.String(), err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, constants.MaxPayloadBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return Result{}, &errors.DeliveryError{
			SubmissionID: sub.ID,
			Endpoint:     sub.TargetEndpoint,
			StatusCode:   resp.StatusCode,
			Message:      msg,
			Err:          fmt.Errorf("%s %s: status %d", method, endpoint.Redacted(), resp.StatusCode),
		}
	}

	result := Result{StatusCode: resp.StatusCode, Record: json.RawMessage(sub.Payload)}
	if readErr == nil && len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		result.Record = json.RawMessage(body)
	}
	return result, nil
}

func (c *Client) token(ctx context.Context, sub queue.Submission) string {
	if c.resolver == nil {
		return sub.AuthToken
	}
	fresh, err := c.resolver(ctx, sub)
	if err != nil {
		c.logger.Warn().Err(err).Str("submission_id", sub.ID).Msg("Token resolver failed, using captured credential")
		return sub.AuthToken
	}
	if fresh == "" {
		return sub.AuthToken
	}
	return fresh
}
