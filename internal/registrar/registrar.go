// Package registrar talks to the GitHub REST API on behalf of a user: who is
// signed in, whether a repository exists, and registering or removing the
// fork webhook that feeds the notification pipeline.
//
// Every call runs under its own timeout. Failures are reduced to two kinds
// callers can branch on: ErrNotFound (GitHub answered 404) and
// ErrUnavailable (anything else). A *StatusError carries the upstream status
// and message when GitHub sent one.
package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
)

const (
	DefaultTimeout     = 45 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

var (
	ErrNotFound    = errors.New("registrar: not found")
	ErrUnavailable = errors.New("registrar: upstream unavailable")
)

// StatusError describes a failed GitHub call. Status is zero when no HTTP
// response was received (network error, timeout).
type StatusError struct {
	Op      string
	Status  int
	Message string
	kind    error
	cause   error
}

func (e *StatusError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("registrar: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("registrar: %s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *StatusError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.cause}
}

// Config controls how the client reaches GitHub.
type Config struct {
	// BaseURL overrides https://api.github.com/ (tests, GitHub Enterprise).
	BaseURL     string
	Timeout     time.Duration
	DialTimeout time.Duration
}

// Client is safe for concurrent use. It holds no per-user state; the token
// is passed on every call.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// New builds a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("registrar: parsing base URL %q: %w", cfg.BaseURL, err)
		}
		base = u
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext

	return &Client{
		base:       base,
		httpClient: &http.Client{Transport: transport},
		timeout:    cfg.Timeout,
		logger:     logger,
	}, nil
}

// NewGitHubClient returns a go-github client using httpClient and, when
// base is non-nil, pointed at base instead of api.github.com.
func NewGitHubClient(httpClient *http.Client, base *url.URL) *github.Client {
	gh := github.NewClient(httpClient)
	if base != nil {
		gh.BaseURL = base
	}
	return gh
}

// BaseURL exposes the configured API root, or nil for the public API.
func (c *Client) BaseURL() *url.URL {
	return c.base
}

func (c *Client) github(token string) *github.Client {
	return NewGitHubClient(c.httpClient, c.base).WithAuthToken(token)
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// classify turns a go-github error into ErrNotFound or ErrUnavailable. The
// full upstream body is logged; only the summary message travels upward.
func (c *Client) classify(op string, resp *github.Response, err error) error {
	se := &StatusError{Op: op, kind: ErrUnavailable, cause: err}

	var ghErr *github.ErrorResponse
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	switch {
	case errors.As(err, &ghErr):
		se.Status = ghErr.Response.StatusCode
		se.Message = ghErr.Message
		if len(ghErr.Errors) > 0 {
			parts := make([]string, 0, len(ghErr.Errors))
			for _, e := range ghErr.Errors {
				if e.Message != "" {
					parts = append(parts, e.Message)
				} else {
					parts = append(parts, e.Code)
				}
			}
			se.Message = fmt.Sprintf("%s (%s)", ghErr.Message, strings.Join(parts, "; "))
		}
	case errors.As(err, &rateErr):
		se.Status = rateErr.Response.StatusCode
		se.Message = rateErr.Message
	case errors.As(err, &abuseErr):
		se.Status = abuseErr.Response.StatusCode
		se.Message = abuseErr.Message
	case resp != nil && resp.Response != nil:
		se.Status = resp.StatusCode
		se.Message = err.Error()
	default:
		se.Message = err.Error()
	}

	if se.Status == http.StatusNotFound {
		se.kind = ErrNotFound
	}

	c.logger.Warn("github call failed",
		slog.String("op", op),
		slog.Int("status", se.Status),
		slog.String("error", err.Error()),
	)
	return se
}

// Status extracts the upstream HTTP status from err, or 0.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Message extracts the upstream summary message from err, falling back to
// err.Error().
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
