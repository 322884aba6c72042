// Package router sends chat requests to an LLM backend with timeout, retry,
// and fallback, abstracting provider differences behind the uniform
// diagent.Backend contract.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arkadyv/diagent"
	"github.com/arkadyv/diagent/metrics"
)

// ForcedToolUser is implemented by backends that natively support forced
// tool use. Backends that do not implement it (or return false) get
// required-mode emulation from the Router: a zero-tool-call response is
// rejected and re-requested once.
type ForcedToolUser interface {
	SupportsForcedToolUse() bool
}

// Result is a routed chat response plus routing metadata for analytics.
type Result struct {
	Response *diagent.LLMResponse

	// Backend and Provider identify which backend served the call.
	Backend  string
	Provider diagent.Provider
	Model    string

	// HadFallback is true when the primary failed and the fallback served
	// the request.
	HadFallback bool

	// Attempts is the number of attempts made against the serving backend.
	Attempts int
}

// Router selects an active backend from configuration and wraps each call
// with the retry policy. On primary exhaustion it falls back to the
// secondary backend, when configured. The Router holds no mutable state and
// is safe for concurrent use.
type Router struct {
	primary  diagent.Backend
	fallback diagent.Backend
	policy   RetryPolicy
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a Router. fallback may be nil. A nil logger disables logging.
func New(primary, fallback diagent.Backend, policy RetryPolicy, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		primary:  primary,
		fallback: fallback,
		policy:   policy,
		timeout:  60 * time.Second,
		logger:   logger,
	}
}

// WithTimeout sets the per-call timeout. Returns the router for chaining.
func (r *Router) WithTimeout(d time.Duration) *Router {
	r.timeout = d
	return r
}

// ActiveProvider returns the primary backend's provider family, used to
// select prompt formatting. Falls back to the fallback backend when no
// primary is configured.
func (r *Router) ActiveProvider() diagent.Provider {
	if r.primary != nil {
		return r.primary.Provider()
	}
	if r.fallback != nil {
		return r.fallback.Provider()
	}
	return diagent.ProviderOpenAI
}

// ActiveModel returns the primary backend's model name.
func (r *Router) ActiveModel() string {
	if r.primary != nil {
		return r.primary.Model()
	}
	if r.fallback != nil {
		return r.fallback.Model()
	}
	return ""
}

// Chat sends the request to the primary backend, retrying transient failures
// per the policy. If the primary exhausts its attempts the fallback backend
// is tried with the same policy. Non-transient errors fail immediately.
func (r *Router) Chat(ctx context.Context, req diagent.ChatRequest) (*Result, error) {
	if r.primary == nil {
		return nil, diagent.ErrNoBackend
	}

	resp, attempts, err := r.callBackend(ctx, r.primary, req)
	if err == nil {
		return &Result{
			Response: resp,
			Backend:  r.primary.Name(),
			Provider: r.primary.Provider(),
			Model:    r.primary.Model(),
			Attempts: attempts,
		}, nil
	}

	if r.fallback == nil || ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %v", diagent.ErrBackendExhausted, r.primary.Name(), err)
	}

	r.logger.Warn("primary backend exhausted, trying fallback",
		zap.String("primary", r.primary.Name()),
		zap.String("fallback", r.fallback.Name()),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	metrics.LLMFallbacksTotal.Inc()

	resp, attempts, fbErr := r.callBackend(ctx, r.fallback, req)
	if fbErr != nil {
		return nil, fmt.Errorf("%w: primary %s: %v; fallback %s: %v",
			diagent.ErrBackendExhausted, r.primary.Name(), err, r.fallback.Name(), fbErr)
	}

	return &Result{
		Response:    resp,
		Backend:     r.fallback.Name(),
		Provider:    r.fallback.Provider(),
		Model:       r.fallback.Model(),
		HadFallback: true,
		Attempts:    attempts,
	}, nil
}

// callBackend runs one backend through the retry policy, applying the
// per-call timeout and required-mode emulation.
func (r *Router) callBackend(
	ctx context.Context,
	backend diagent.Backend,
	req diagent.ChatRequest,
) (*diagent.LLMResponse, int, error) {
	call := func() (*diagent.LLMResponse, error) {
		callCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		resp, err := backend.Chat(callCtx, req)
		if err != nil {
			metrics.LLMRequestsTotal.WithLabelValues(
				backend.Name(), string(backend.Provider()), "error").Inc()
			r.logger.Warn("backend call failed",
				zap.String("backend", backend.Name()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return nil, err
		}

		metrics.LLMRequestsTotal.WithLabelValues(
			backend.Name(), string(backend.Provider()), "ok").Inc()
		metrics.LLMTokensTotal.WithLabelValues(
			string(backend.Provider()), "input").Add(float64(resp.Usage.InputTokens))
		metrics.LLMTokensTotal.WithLabelValues(
			string(backend.Provider()), "output").Add(float64(resp.Usage.OutputTokens))
		return resp, nil
	}

	resp, attempts, err := do(ctx, r.policy, call)
	if attempts > 1 {
		metrics.LLMRetriesTotal.WithLabelValues(backend.Name()).Add(float64(attempts - 1))
	}
	if err != nil {
		return nil, attempts, err
	}

	// Required-mode emulation for backends with no forced-tool-use concept:
	// reject a zero-tool-call response and re-request once.
	if req.ToolChoice == diagent.ToolChoiceRequired && len(resp.ToolCalls) == 0 {
		if ftu, ok := backend.(ForcedToolUser); !ok || !ftu.SupportsForcedToolUse() {
			r.logger.Debug("emulating required tool choice, re-requesting",
				zap.String("backend", backend.Name()),
			)
			retryResp, retryErr := call()
			if retryErr == nil && len(retryResp.ToolCalls) > 0 {
				return retryResp, attempts + 1, nil
			}
			// Keep the original response; the orchestrator treats a
			// tool-free answer as the diagnostic phase completing.
		}
	}

	return resp, attempts, nil
}
