// Package fetch wraps outbound HTTP GET calls against JSON APIs with
// per-attempt timeouts, retries, and exponential backoff. Failures are
// classified into retryable and terminal kinds so callers can surface
// rate limits and domain errors immediately while transient upstream
// faults are masked up to a retry budget.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	// DefaultMaxAttempts is the number of times a call is tried before the
	// last error is surfaced.
	DefaultMaxAttempts = 3

	// DefaultAttemptTimeout bounds a single attempt, not the whole call.
	DefaultAttemptTimeout = 10 * time.Second
)

// Kind classifies a failed fetch.
type Kind int

const (
	// KindServerError covers HTTP 5xx responses and failed connections.
	// Calls failing this way are retried.
	KindServerError Kind = iota + 1

	// KindRateLimited covers HTTP 429. Surfaced immediately, retrying a
	// rate-limited endpoint only wastes the budget.
	KindRateLimited

	// KindClientError covers the remaining HTTP 4xx responses. These are
	// domain errors and are never retried.
	KindClientError

	// KindTimeout covers attempts cut off by the per-attempt deadline.
	// Calls failing this way are retried.
	KindTimeout

	// KindBadPayload covers 2xx responses whose body is not valid JSON.
	KindBadPayload

	// KindNotFound covers 2xx responses whose decoded body carries no
	// results, as reported by the caller's Check.
	KindNotFound
)

// String implements fmt.Stringer, mainly for log attributes.
func (k Kind) String() string {
	switch k {
	case KindServerError:
		return "server_error"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindTimeout:
		return "timeout"
	case KindBadPayload:
		return "bad_payload"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

func retryable(k Kind) bool {
	return k == KindServerError || k == KindTimeout
}

// Error is the classified failure of a call. Attempts records how many
// attempts were actually made before the error was surfaced.
type Error struct {
	Kind     Kind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := e.kindMessage()
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) kindMessage() string {
	switch e.Kind {
	case KindServerError:
		if e.Status == 0 {
			return "upstream connection failed"
		}
		return fmt.Sprintf("upstream server error (status %d)", e.Status)
	case KindRateLimited:
		return "upstream rate limited (status 429)"
	case KindClientError:
		return fmt.Sprintf("upstream rejected the request (status %d)", e.Status)
	case KindTimeout:
		return "upstream request timed out"
	case KindBadPayload:
		return "upstream returned invalid JSON"
	case KindNotFound:
		return "no matching results"
	default:
		return "upstream request failed"
	}
}

// Check inspects a decoded response body for an empty or missing result
// set. A non-nil return is terminal and reported as KindNotFound; it is
// never retried.
type Check func() error

// SleepFunc waits out a backoff delay. Implementations must return early
// with the context error if ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxAttempts sets the retry budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithAttemptTimeout sets the per-attempt deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithSleep replaces the backoff sleeper, letting tests run the retry
// schedule without real delays.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// WithLogger sets the logger used to report retries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "fetch"))
	}
}

// Client performs resilient JSON GET calls. The zero value is not usable;
// construct instances with New. A Client holds no per-call state and is
// safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	maxAttempts    int
	attemptTimeout time.Duration
	sleep          SleepFunc
	logger         *slog.Logger
}

// New creates a Client with the default retry budget and timeouts applied,
// then applies the given options.
func New(options ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		sleep:          sleepContext,
		logger:         slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// JSON performs one logical GET against rawURL and decodes the body into
// out. Transient failures (5xx, failed connections, attempt timeouts) are
// retried with a delay of 2^attempt seconds between attempts until the
// budget is exhausted, after which the last error is returned. Terminal
// failures (429, other 4xx, invalid JSON, an empty result set reported by
// check) are returned immediately.
//
// check may be nil. When non-nil it runs after a successful decode and its
// error marks the response as a terminal not-found condition.
//
// Cancelling ctx aborts the call, including any backoff wait, and is never
// retried. All returned failures other than context errors unwrap to
// *Error.
func (c *Client) JSON(ctx context.Context, rawURL string, out any, check Check) error {
	var last *Error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		fErr := c.attempt(ctx, rawURL, out, check)
		if fErr == nil {
			return nil
		}
		fErr.Attempts = attempt + 1
		last = fErr

		if !retryable(fErr.Kind) {
			return fErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		delay := backoffDelay(attempt)
		c.logger.Warn("retrying upstream call",
			slog.String("url", rawURL),
			slog.String("kind", fErr.Kind.String()),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))

		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return last
}

func (c *Client) attempt(ctx context.Context, rawURL string, out any, check Check) *Error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Kind: KindClientError, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if timeoutError(err) {
			return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
		}
		return &Error{Kind: KindServerError, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if timeoutError(err) {
			return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
		}
		return &Error{Kind: KindServerError, URL: rawURL, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, URL: rawURL, Status: resp.StatusCode, Err: upstreamReason(body)}
	case resp.StatusCode >= 500:
		return &Error{Kind: KindServerError, URL: rawURL, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &Error{Kind: KindClientError, URL: rawURL, Status: resp.StatusCode, Err: upstreamReason(body)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindBadPayload, URL: rawURL, Status: resp.StatusCode, Err: err}
	}

	if check != nil {
		if err := check(); err != nil {
			return &Error{Kind: KindNotFound, URL: rawURL, Status: resp.StatusCode, Err: err}
		}
	}

	return nil
}

// backoffDelay returns 2^attempt seconds, so 1s, 2s, 4s for attempts 0,1,2.
func backoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func timeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nErr net.Error
	return errors.As(err, &nErr) && nErr.Timeout()
}

// upstreamReason pulls the "reason" field Open-Meteo style APIs put in
// their error bodies, if there is one.
func upstreamReason(body []byte) error {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Reason == "" {
		return nil
	}
	return errors.New(payload.Reason)
}
