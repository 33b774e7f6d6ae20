package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"switchboard/internal/engine/stats"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/metrics"
	"switchboard/internal/platform/models"
)

const (
	DefaultMaxRetries   = 2
	DefaultRetryBackoff = time.Second
	DefaultMaxInFlight  = 256
)

var ErrShuttingDown = apperrors.New(apperrors.KindInternal, "broadcaster is shutting down")

type BroadcasterConfig struct {
	// MaxRetries is the number of extra attempts for registrations with
	// retry_on_failure set. Zero means DefaultMaxRetries; negative
	// disables retries.
	MaxRetries int
	// RetryBackoff is the first retry delay; each later delay doubles.
	RetryBackoff time.Duration
	MaxInFlight  int64
}

// Event is an inbound provider event.
type Event struct {
	EventType string
	Payload   json.RawMessage
}

// Broadcaster runs the event-listener path: every matching registration
// gets its own goroutine and Broadcast returns as soon as they are
// started. Outcomes are recorded per dispatch and never reported back.
type Broadcaster struct {
	router   *Router
	opener   Opener
	recorder Recorder
	poster   *Poster
	policy   DeadlinePolicy
	metrics  *metrics.Metrics
	cfg      BroadcasterConfig
	now      func() time.Time

	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closing bool
	base    context.Context
	abort   context.CancelFunc
}

func NewBroadcaster(router *Router, opener Opener, recorder Recorder, poster *Poster, policy DeadlinePolicy, m *metrics.Metrics, cfg BroadcasterConfig) *Broadcaster {
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}

	base, abort := context.WithCancel(context.Background())
	return &Broadcaster{
		router:   router,
		opener:   opener,
		recorder: recorder,
		poster:   poster,
		policy:   policy,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		base:     base,
		abort:    abort,
	}
}

// Broadcast starts one dispatch per matching registration and returns the
// number started. Only tenant resolution and lookup errors are returned.
func (b *Broadcaster) Broadcast(ctx context.Context, evt Event) (int, error) {
	tenant, regs, err := b.router.Event(ctx, evt.EventType, evt.Payload)
	if err != nil {
		return 0, err
	}
	if len(regs) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(EventEnvelope(tenant, evt.EventType, evt.Payload, b.now()))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindInvalidInput, "event payload is not valid JSON", err)
	}

	// Dispatches outlive the inbound request but keep its logger and ids.
	detached := context.WithoutCancel(ctx)
	rid := requestID(ctx)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closing {
		return 0, ErrShuttingDown
	}

	for _, reg := range regs {
		b.wg.Add(1)
		b.metrics.DispatchStarted()
		go func(reg *models.Registration) {
			defer b.wg.Done()
			defer b.metrics.DispatchFinished()
			b.dispatch(detached, reg, evt.EventType, body, rid)
		}(reg)
	}

	log.Ctx(ctx).Info().
		Str("component", "broadcaster").
		Str("tenant_id", tenant.ID).
		Str("event", evt.EventType).
		Int("dispatched", len(regs)).
		Msg("event dispatch started")

	return len(regs), nil
}

func (b *Broadcaster) dispatch(ctx context.Context, reg *models.Registration, eventType string, body []byte, rid string) {
	logger := log.Ctx(ctx).With().
		Str("component", "broadcaster").
		Str("tenant_id", reg.TenantID).
		Str("registration_id", reg.ID).
		Str("event", eventType).
		Logger()

	// Shutdown may abort dispatches that are still running after the
	// drain window.
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(b.base, cancel)
	defer stop()

	start := b.now()
	outcome := stats.Outcome{Registration: reg, RequestPayload: body}

	if err := b.sem.Acquire(dctx, 1); err != nil {
		outcome.Error = "dispatch aborted before start"
		b.finish(ctx, &logger, outcome, start)
		return
	}
	defer b.sem.Release(1)

	// StatusCode stays 0 unless a downstream response arrived.
	token, err := openToken(b.opener, reg)
	if err != nil {
		outcome.Attempts = 1
		outcome.Error = string(apperrors.KindOf(err))
		b.finish(ctx, &logger, outcome, start)
		return
	}

	extra := 0
	if reg.RetryOnFailure {
		extra = b.cfg.MaxRetries
	}
	backoff := retry.WithMaxRetries(uint64(extra), retry.NewExponential(b.cfg.RetryBackoff))

	var resp *Response
	var lastErr error
	_ = retry.Do(dctx, backoff, func(ctx context.Context) error {
		outcome.Attempts++
		b.metrics.ObserveAttempt(string(reg.Kind))

		resp, lastErr = b.poster.Post(ctx, Delivery{
			URL:       reg.TargetURL,
			Body:      body,
			Token:     token,
			Deadline:  b.policy.Timeout(reg),
			RequestID: rid,
			Headers: map[string]string{
				"X-Switchboard-Event":   eventType,
				"X-Switchboard-Attempt": strconv.Itoa(outcome.Attempts),
			},
		})
		if lastErr == nil && resp.OK() {
			return nil
		}

		failure := lastErr
		if failure == nil {
			failure = apperrors.Upstream(resp.StatusCode)
		}
		logger.Debug().Err(failure).Int("attempt", outcome.Attempts).Msg("event dispatch attempt failed")
		return retry.RetryableError(failure)
	})

	switch {
	case lastErr != nil:
		outcome.Error = lastErr.Error()
	case resp != nil:
		outcome.StatusCode = resp.StatusCode
		outcome.Response = resp.Body
		outcome.Success = resp.OK()
		if !outcome.Success {
			outcome.Error = "downstream returned HTTP " + strconv.Itoa(resp.StatusCode)
		}
	default:
		outcome.Error = "dispatch aborted"
	}
	b.finish(ctx, &logger, outcome, start)
}

func (b *Broadcaster) finish(ctx context.Context, logger *zerolog.Logger, o stats.Outcome, start time.Time) {
	o.Duration = b.now().Sub(start)
	_ = b.recorder.RecordOutcome(ctx, o)

	ev := logger.Info()
	if !o.Success {
		ev = logger.Warn().Str("error", o.Error)
	}
	ev.Int("status", o.StatusCode).
		Int("attempts", o.Attempts).
		Dur("duration", o.Duration).
		Bool("success", o.Success).
		Msg("event dispatch finished")
}

// Wait blocks until every started dispatch has been recorded.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

// Shutdown stops accepting events and drains in-flight dispatches. When
// ctx ends first the remaining dispatches are aborted and recorded as
// failures before Shutdown returns.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		b.abort()
		<-done
		return errors.Join(ErrShuttingDown, ctx.Err())
	}
}
