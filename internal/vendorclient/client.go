// Package vendorclient implements the Rate-Limited Vendor Client (C3): a
// per-vendor wrapper that paces calls with a token bucket, serializes them
// through a single FIFO worker for strict fairness, retries transient
// failures with backoff, and logs every call. Adapters (C4) are the only
// callers; nothing above C3 ever retries.
//
// Pacing is two-layered, by design: golang.org/x/time/rate.Limiter enforces
// the configured calls-per-second ceiling (the ecosystem's standard
// token-bucket primitive, grounded on AKJUS-bsc-erigon's use of the same
// package for its own request pacing), and a single serial worker goroutine
// — the pattern in internal/clients/tradernet/sdk/client.go — guarantees
// FIFO ordering across concurrent callers, which a bare rate.Limiter alone
// does not (callers can race to acquire the next token in any order).
package vendorclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TransientError wraps an underlying error known to be retryable: network
// failures and vendor-declared rate-limit responses. Adapters construct
// this when they recognize such a condition from a raw transport error;
// the client treats everything else as non-retryable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable by C3.
func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// RateLimitError marks a transient failure specifically attributable to
// the vendor's rate limiting (e.g. HTTP 429), rather than a generic
// network or server error. It is retried exactly like TransientError; the
// distinction only matters once retries are exhausted, so the caller can
// tell a rate-limit outage from any other kind.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// NewRateLimitError marks err as retryable by C3 and, if retries exhaust,
// attributable to rate limiting.
func NewRateLimitError(err error) error {
	if err == nil {
		return nil
	}
	return &RateLimitError{Err: err}
}

// AuthError marks a non-retryable authorization failure (e.g. HTTP
// 401/403). Retrying a bad credential never helps, so this is never
// treated as transient.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError marks err as a non-retryable authorization failure.
func NewAuthError(err error) error {
	if err == nil {
		return nil
	}
	return &AuthError{Err: err}
}

func isTransient(err error) bool {
	var t *TransientError
	if errors.As(err, &t) {
		return true
	}
	var r *RateLimitError
	return errors.As(err, &r)
}

// RequestFunc performs one raw call to the vendor. It returns a
// TransientError or RateLimitError (via NewTransientError/NewRateLimitError)
// for failures the client should retry, and any other error for failures
// that should surface immediately.
type RequestFunc func(ctx context.Context, method string, params any) (any, error)

// Config tunes a Client's pacing and retry behavior.
type Config struct {
	CallsPerSecond    float64       // token-bucket refill rate; spec default for V-T is 2.0
	MaxAttempts       int           // default 3
	BaseBackoff       time.Duration // default 250ms, doubled per attempt
	SlowCallThreshold time.Duration // default 5s
}

func (c Config) withDefaults() Config {
	if c.CallsPerSecond <= 0 {
		c.CallsPerSecond = 2.0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.SlowCallThreshold <= 0 {
		c.SlowCallThreshold = 5 * time.Second
	}
	return c
}

type job struct {
	ctx      context.Context
	method   string
	params   any
	resultCh chan jobResult
}

type jobResult struct {
	data any
	err  error
}

// Client is a single vendor's rate-limited, retrying, logging transport
// wrapper. Credentials and pacing are fixed at construction; rotating
// credentials means building a new Client.
type Client struct {
	vendor  string
	cfg     Config
	limiter *rate.Limiter
	do      RequestFunc
	log     zerolog.Logger

	queue chan job
	done  chan struct{}
}

// New constructs a vendor client. do performs the actual vendor call
// (typically an HTTP round-trip); it must not itself retry or rate-limit.
func New(vendor string, cfg Config, do RequestFunc, log zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		vendor:  vendor,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), 1),
		do:      do,
		log:     log.With().Str("component", "vendorclient").Str("vendor", vendor).Logger(),
		queue:   make(chan job, 256),
		done:    make(chan struct{}),
	}
	go c.worker()
	return c
}

// Close stops accepting work and waits for the worker goroutine to exit.
// Calls already queued are still dispatched, in order, before the worker
// stops.
func (c *Client) Close() {
	close(c.queue)
	<-c.done
}

// Call performs one paced, retried, logged vendor call. It blocks until a
// rate-limiter token is available, a result arrives, or ctx is cancelled —
// a cancelled call releases its queue position promptly.
func (c *Client) Call(ctx context.Context, method string, params any) (any, error) {
	resultCh := make(chan jobResult, 1)
	j := job{ctx: ctx, method: method, params: params, resultCh: resultCh}

	select {
	case c.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) worker() {
	defer close(c.done)
	for j := range c.queue {
		j.resultCh <- c.dispatch(j)
	}
}

func (c *Client) dispatch(j job) jobResult {
	if err := c.limiter.Wait(j.ctx); err != nil {
		return jobResult{err: err}
	}

	digest := paramDigest(j.params)
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if j.ctx.Err() != nil {
			return jobResult{err: j.ctx.Err()}
		}

		data, err := c.do(j.ctx, j.method, j.params)
		if err == nil {
			c.logCall(j.method, digest, true, start, attempt, rowCount(data))
			return jobResult{data: data}
		}

		lastErr = err
		if !isTransient(err) {
			c.logCall(j.method, digest, false, start, attempt, 0)
			return jobResult{err: err}
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}
		backoff := c.cfg.BaseBackoff * time.Duration(1<<uint(attempt-1))
		backoff += time.Duration(rand.Int63n(int64(c.cfg.BaseBackoff) + 1)) // jitter
		select {
		case <-time.After(backoff):
		case <-j.ctx.Done():
			return jobResult{err: j.ctx.Err()}
		}
	}

	c.logCall(j.method, digest, false, start, c.cfg.MaxAttempts, 0)
	return jobResult{err: fmt.Errorf("vendorclient: %s: exhausted %d attempts: %w", j.method, c.cfg.MaxAttempts, lastErr)}
}

func (c *Client) logCall(method, digest string, success bool, start time.Time, attempt, rows int) {
	elapsed := time.Since(start)
	evt := c.log.Debug()
	if !success {
		evt = c.log.Warn()
	}
	evt = evt.Str("method", method).Str("param_digest", digest).
		Bool("success", success).Int("attempt", attempt).
		Int("rows", rows).Dur("elapsed", elapsed)
	if elapsed >= c.cfg.SlowCallThreshold {
		evt = evt.Bool("slow", true)
	}
	evt.Msg("vendor call")
}

func paramDigest(params any) string {
	b, err := json.Marshal(params)
	if err != nil {
		return "unmarshalable"
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// rowCount best-efforts a row count out of a typical adapter response shape
// ([]T or anything with a Len-like slice underneath) purely for logging; it
// never affects control flow.
func rowCount(data any) int {
	switch v := data.(type) {
	case nil:
		return 0
	case []any:
		return len(v)
	default:
		return -1
	}
}
