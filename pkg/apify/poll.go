package apify

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/resilience"
)

const (
	defaultPollInitial = 2 * time.Second
	defaultPollCap     = 15 * time.Second
	defaultPollTimeout = 15 * time.Minute
	defaultWaitSecs    = 60
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	initial  time.Duration
	cap      time.Duration
	timeout  time.Duration
	waitSecs int
	retry    resilience.RetryConfig
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		initial:  defaultPollInitial,
		cap:      defaultPollCap,
		timeout:  defaultPollTimeout,
		waitSecs: defaultWaitSecs,
		retry:    resilience.DefaultRetryConfig(),
	}
}

// WithPollInterval overrides the initial poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.initial = d
	}
}

// WithPollCap overrides the maximum poll interval.
func WithPollCap(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.cap = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// WithWaitForFinish sets how long each status request may block server-side.
// Zero disables server-side waiting.
func WithWaitForFinish(secs int) PollOption {
	return func(c *pollConfig) {
		c.waitSecs = secs
	}
}

// WithStatusRetry overrides the retry policy for individual status reads. A
// policy without ShouldRetry or OnRetry keeps the default classifier and logger.
func WithStatusRetry(cfg resilience.RetryConfig) PollOption {
	return func(c *pollConfig) {
		c.retry = cfg
	}
}

// PollRun polls GetRun until the run reaches a terminal status or the context
// expires. The terminal run is returned whatever its status; callers decide
// whether a non-SUCCEEDED run is an error. Status reads that fail with a
// transient error are retried; the run itself is never restarted.
func PollRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.retry.ShouldRetry == nil {
		cfg.retry.ShouldRetry = isRetryable
	}
	if cfg.retry.OnRetry == nil {
		cfg.retry.OnRetry = resilience.RetryLogger("apify", "get_run")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	interval := cfg.initial
	for {
		run, err := resilience.DoVal(ctx, cfg.retry, func(ctx context.Context) (*Run, error) {
			return client.GetRun(ctx, runID, cfg.waitSecs)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "apify: poll run %s", runID)
		}
		if run.Terminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "apify: poll run %s timed out", runID)
		case <-time.After(interval):
		}

		interval *= 2
		if interval > cfg.cap {
			interval = cfg.cap
		}
	}
}

func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return resilience.IsTransientHTTPStatus(apiErr.StatusCode)
	}
	return resilience.IsTransient(err)
}
