package diagent

import "errors"

var (
	// ErrInputRejected identifies a guardrail refusal. The orchestrator
	// answers rejected input with a refusal message and a nil error, so the
	// session id reaches the caller; outer surfaces that need an error
	// value for refused turns wrap this sentinel. No model or tool call has
	// been made.
	ErrInputRejected = errors.New("diagent: input rejected by guardrails")

	// ErrBackendExhausted is returned when the primary backend (and the
	// fallback, if configured) failed after all retries. Session state is
	// preserved so the caller may retry the same turn.
	ErrBackendExhausted = errors.New("diagent: all backends exhausted")

	// ErrSessionNotFound is returned by introspection calls for ids the
	// orchestrator does not know.
	ErrSessionNotFound = errors.New("diagent: session not found")

	// ErrNoBackend is returned when the router has no configured backend.
	ErrNoBackend = errors.New("diagent: no backend configured")
)
