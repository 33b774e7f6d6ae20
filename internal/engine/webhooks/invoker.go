package webhooks

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"switchboard/internal/engine/stats"
	"switchboard/internal/engine/vault"
	apperrors "switchboard/internal/pkg/errors"
	"switchboard/internal/platform/models"
)

type Opener interface {
	Decrypt(s vault.Sealed) (string, error)
}

type Recorder interface {
	RecordOutcome(ctx context.Context, o stats.Outcome) error
}

// FunctionCall is an inbound function invocation from an agent.
type FunctionCall struct {
	AgentID      string
	FunctionName string
	CallID       string
	Args         json.RawMessage
	Payload      json.RawMessage
}

// Invoker runs the synchronous function-call path: one bounded POST whose
// reply is handed back to the caller unchanged. It never retries.
type Invoker struct {
	router   *Router
	opener   Opener
	recorder Recorder
	poster   *Poster
	policy   DeadlinePolicy
	now      func() time.Time
}

func NewInvoker(router *Router, opener Opener, recorder Recorder, poster *Poster, policy DeadlinePolicy) *Invoker {
	return &Invoker{
		router:   router,
		opener:   opener,
		recorder: recorder,
		poster:   poster,
		policy:   policy,
		now:      time.Now,
	}
}

// Invoke returns the downstream response for 2xx replies. For non-2xx
// replies it returns both the response and an UpstreamError so the caller
// can relay status and body as-is.
func (i *Invoker) Invoke(ctx context.Context, call FunctionCall) (*Response, error) {
	tenant, reg, err := i.router.Function(ctx, call.AgentID, call.FunctionName)
	if err != nil {
		return nil, err
	}

	logger := log.Ctx(ctx).With().
		Str("component", "invoker").
		Str("tenant_id", tenant.ID).
		Str("registration_id", reg.ID).
		Str("function", call.FunctionName).
		Logger()

	env := FunctionEnvelope(tenant, call.FunctionName, call.CallID, call.Args, call.Payload, i.now())
	body, err := json.Marshal(env)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInvalidInput, "function arguments are not valid JSON", err)
	}

	start := i.now()
	outcome := stats.Outcome{Registration: reg, RequestPayload: body, Attempts: 1}

	// StatusCode stays 0 unless a downstream response arrived.
	token, err := openToken(i.opener, reg)
	if err != nil {
		outcome.Error = string(apperrors.KindOf(err))
		outcome.Duration = i.now().Sub(start)
		i.record(ctx, outcome)
		logger.Error().Str("error_kind", outcome.Error).Msg("could not open registration auth token")
		return nil, err
	}

	deadline := i.policy.Timeout(reg)
	resp, err := i.poster.Post(ctx, Delivery{
		URL:       reg.TargetURL,
		Body:      body,
		Token:     token,
		Deadline:  deadline,
		RequestID: requestID(ctx),
		Headers:   map[string]string{"X-Switchboard-Function": call.FunctionName},
	})
	outcome.Duration = i.now().Sub(start)

	if err != nil {
		outcome.Error = err.Error()
		i.record(ctx, outcome)
		logger.Warn().Err(err).Dur("duration", outcome.Duration).Msg("function call failed")
		return nil, err
	}

	outcome.StatusCode = resp.StatusCode
	outcome.Response = resp.Body
	outcome.Success = resp.OK()
	if !outcome.Success {
		outcome.Error = "downstream returned HTTP " + strconv.Itoa(resp.StatusCode)
	}
	i.record(ctx, outcome)

	if !resp.OK() {
		logger.Warn().Int("status", resp.StatusCode).Dur("duration", outcome.Duration).Msg("function call returned non-2xx")
		return resp, apperrors.Upstream(resp.StatusCode)
	}

	logger.Debug().Int("status", resp.StatusCode).Dur("duration", outcome.Duration).Msg("function call completed")
	return resp, nil
}

// record persists the outcome on a context the caller cannot cancel.
func (i *Invoker) record(ctx context.Context, o stats.Outcome) {
	_ = i.recorder.RecordOutcome(context.WithoutCancel(ctx), o)
}

func openToken(opener Opener, reg *models.Registration) (string, error) {
	if !reg.HasAuthToken() {
		return "", nil
	}
	if opener == nil {
		return "", vault.ErrKey
	}
	return opener.Decrypt(*reg.AuthToken)
}

func requestID(ctx context.Context) string {
	if id, ok := hlog.IDFromCtx(ctx); ok {
		return id.String()
	}
	return ""
}
