// Package webhook delivers task events to registered webhook endpoints.
// Delivery is at-least-once: attempts retry with exponential backoff, and
// the receiver is expected to be idempotent.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/agentrelay/agentrelay/internal/domain/a2a"
	"github.com/agentrelay/agentrelay/internal/resilience"
)

// headerNotificationToken carries the caller-supplied opaque correlation
// token on every delivery.
const headerNotificationToken = "X-A2A-Notification-Token"

// Options tune delivery behavior.
type Options struct {
	// AttemptTimeout bounds each individual HTTP attempt.
	AttemptTimeout time.Duration
	// MaxAttempts bounds retries per event per webhook.
	MaxAttempts uint64
	// MaxElapsed bounds the total retry budget per event per webhook.
	MaxElapsed time.Duration
	// MaxConcurrent bounds in-flight deliveries across all tasks.
	MaxConcurrent int
	// AllowPrivate disables the private-address denylist. Development only.
	AllowPrivate bool
	// Credential is the server-side bearer token used when a config
	// carries no authentication of its own.
	Credential string
}

// Dispatcher posts events to webhook endpoints with retry, per-destination
// circuit breaking, and bounded concurrency. It runs decoupled from the
// request path; its failures are logged, never surfaced to the caller that
// created the task.
type Dispatcher struct {
	client   *http.Client
	opts     Options
	breakers *resilience.BreakerSet
	sem      *semaphore.Weighted
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options, breakers *resilience.BreakerSet) *Dispatcher {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 15 * time.Second
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Dispatcher{
		client:   &http.Client{Timeout: opts.AttemptTimeout},
		opts:     opts,
		breakers: breakers,
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
	}
}

// Deliver posts ev to the webhook described by cfg, retrying with
// exponential backoff until success, a permanent failure, or the retry
// budget is exhausted. It blocks while waiting for a delivery slot.
func (d *Dispatcher) Deliver(ctx context.Context, taskID string, cfg a2a.PushNotificationConfig, ev a2a.Event) error {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)

	if err := ValidateURL(cfg.URL, d.opts.AllowPrivate); err != nil {
		// A URL that passed validation at registration but fails now is a
		// permanent failure, not worth retrying.
		return fmt.Errorf("webhook url rejected: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	breaker := d.breakers.For(destination(cfg.URL))

	op := func() error {
		return breaker.Execute(func() error {
			return d.post(ctx, cfg, payload)
		})
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = d.opts.MaxElapsed

	var schedule backoff.BackOff = bo
	if d.opts.MaxAttempts > 0 {
		schedule = backoff.WithMaxRetries(bo, d.opts.MaxAttempts-1)
	}

	notify := func(err error, next time.Duration) {
		slog.Warn("webhook delivery retry",
			"task_id", taskID,
			"config_id", cfg.ID,
			"next_attempt_in", next,
			"error", err,
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(schedule, ctx), notify); err != nil {
		return fmt.Errorf("deliver to %s: %w", destination(cfg.URL), err)
	}
	return nil
}

func (d *Dispatcher) post(ctx context.Context, cfg a2a.PushNotificationConfig, payload []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set(headerNotificationToken, cfg.Token)
	}
	d.setAuth(req, cfg)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		// Client errors will not heal on retry.
		return backoff.Permanent(fmt.Errorf("endpoint returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
}

// setAuth presents the config's own credentials when given, otherwise the
// server-side credential.
func (d *Dispatcher) setAuth(req *http.Request, cfg a2a.PushNotificationConfig) {
	if auth := cfg.Authentication; auth != nil && auth.Credentials != "" {
		for _, scheme := range auth.Schemes {
			if scheme == "bearer" || scheme == "Bearer" {
				req.Header.Set("Authorization", "Bearer "+auth.Credentials)
				return
			}
		}
	}
	if d.opts.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.Credential)
	}
}

// destination reduces a webhook URL to its breaker key (scheme://host).
func destination(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
