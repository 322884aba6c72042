// Package orchestrator owns per-session conversation state and runs the
// bounded multi-round tool-calling loop: guardrails, reasoning context
// injection, routed model calls, response validation, tool execution, and
// diagnostics accounting.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arkadyv/diagent"
	"github.com/arkadyv/diagent/guardrails"
	"github.com/arkadyv/diagent/metrics"
	"github.com/arkadyv/diagent/reasoning"
	"github.com/arkadyv/diagent/registry"
	"github.com/arkadyv/diagent/router"
	"github.com/arkadyv/diagent/validator"
)

// ChatRouter is the routing capability the orchestrator consumes.
// *router.Router satisfies it; tests substitute their own.
type ChatRouter interface {
	Chat(ctx context.Context, req diagent.ChatRequest) (*router.Result, error)
}

// Confidence nudge sizes. Bounded to [0, 1] at every adjustment.
const (
	confidenceStart       = 0.5
	confidenceToolSuccess = 0.1
	confidenceToolFailure = 0.2
	confidenceValidation  = 0.2
)

// Config holds the orchestrator's tunables.
type Config struct {
	// MaxToolRounds is the default per-turn bound on tool rounds, used
	// when a TurnRequest does not specify one.
	MaxToolRounds int

	// Temperature for model calls.
	Temperature float64

	// MaxContextChars bounds injected reasoning context.
	MaxContextChars int

	// ExpectedSequence is the diagnostic tool ordering handed to the
	// validator. Nil disables sequence checking.
	ExpectedSequence []string

	// RefusalMessage is returned when guardrails reject input.
	RefusalMessage string
}

// DefaultConfig returns 5 tool rounds, temperature 0.2, 2000 character
// context bound, and the canonical diagnostic sequence.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds:    5,
		Temperature:      0.2,
		MaxContextChars:  2000,
		ExpectedSequence: registry.DiagnosticSequence(),
		RefusalMessage:   "I can't process that input. Please describe the network problem you are seeing.",
	}
}

// Deps are the collaborating components, constructed once at process start
// and injected. No package-level state anywhere in the engine.
type Deps struct {
	Router     ChatRouter
	Registry   diagent.ToolRegistry
	Guardrails *guardrails.Validator
	Validator  *validator.Validator
	Reasoning  *reasoning.Cache
	Logger     *zap.Logger
}

// sessionState pairs a session with its turn lock. The lock serializes
// turns: a second chat call for the same session does not touch the message
// list until the first has appended everything for its round.
type sessionState struct {
	mu      sync.Mutex
	session *diagent.Session
}

// Service is the chat orchestrator. Safe for concurrent use across
// sessions; turns within one session are strictly serialized.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	deps Deps
	cfg  Config
}

// New creates a Service. A nil logger in deps disables logging.
func New(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultConfig().MaxToolRounds
	}
	if cfg.RefusalMessage == "" {
		cfg.RefusalMessage = DefaultConfig().RefusalMessage
	}
	return &Service{
		sessions: make(map[string]*sessionState),
		deps:     deps,
		cfg:      cfg,
	}
}

// Chat processes one user turn and blocks until the final answer.
//
// Guardrail rejections come back as a refusal response with a valid session
// id and nil error; only backend exhaustion surfaces as a turn-level error,
// with session state rolled back so the caller may retry the same turn.
func (s *Service) Chat(ctx context.Context, req diagent.TurnRequest) (*diagent.TurnResponse, error) {
	return s.run(ctx, req, nil)
}

// ChatStream is the streaming variant: identical semantics to Chat,
// surfaced incrementally through fn. fn receives ordered tool_call,
// tool_result and content events, then exactly one done (carrying the full
// response) or error event.
func (s *Service) ChatStream(ctx context.Context, req diagent.TurnRequest, fn diagent.StreamFunc) error {
	if fn == nil {
		return fmt.Errorf("orchestrator: nil stream func")
	}
	_, err := s.run(ctx, req, fn)
	return err
}

// run is the shared turn implementation. emit may be nil (blocking form).
func (s *Service) run(
	ctx context.Context,
	req diagent.TurnRequest,
	emit diagent.StreamFunc,
) (*diagent.TurnResponse, error) {
	start := time.Now()
	state := s.resolveSession(req.SessionID)

	state.mu.Lock()
	defer state.mu.Unlock()

	resp, err := s.runLocked(ctx, state, req, emit)
	metrics.TurnDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		if emit != nil {
			emit(diagent.StreamEvent{
				Type:      diagent.StreamError,
				SessionID: state.session.ID,
				Err:       err,
				Timestamp: time.Now(),
			})
		}
		return nil, err
	}

	if emit != nil {
		emit(diagent.StreamEvent{
			Type:      diagent.StreamDone,
			SessionID: resp.SessionID,
			Response:  resp,
			Timestamp: time.Now(),
		})
	}
	return resp, nil
}

// runLocked runs one turn with the session lock held.
func (s *Service) runLocked(
	ctx context.Context,
	state *sessionState,
	req diagent.TurnRequest,
	emit diagent.StreamFunc,
) (*diagent.TurnResponse, error) {
	session := state.session
	logger := s.deps.Logger.With(zap.String("session_id", session.ID))

	diag := diagent.Diagnostics{ConfidenceScore: confidenceStart}
	think := func(format string, args ...any) {
		diag.Thoughts = append(diag.Thoughts, fmt.Sprintf(format, args...))
	}

	// Guardrails short-circuit: no model call, no tool call, session id
	// still returned so the conversation can continue.
	guard := s.deps.Guardrails.Validate(req.Message)
	if !guard.Valid {
		metrics.GuardrailRejectionsTotal.Inc()
		metrics.TurnsTotal.WithLabelValues("rejected").Inc()
		logger.Warn("input rejected by guardrails", zap.String("reason", guard.Reason))
		think("input rejected: %s", guard.Reason)
		return &diagent.TurnResponse{
			Content:     s.cfg.RefusalMessage + " (" + guard.Reason + ")",
			SessionID:   session.ID,
			Diagnostics: diag,
		}, nil
	}
	for _, warning := range guard.Warnings {
		logger.Warn("guardrail warning", zap.String("warning", warning))
		think("guardrail warning: %s", warning)
	}

	maxRounds := req.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = s.cfg.MaxToolRounds
	}

	// Everything appended from here belongs to this turn. Cancellation
	// policy: each round's messages are appended as a complete unit (the
	// assistant message and one tool message per call), and any abort
	// rolls the whole turn back to baseLen. The message list therefore
	// never holds an assistant message with unmatched tool calls.
	baseLen := len(session.Messages)
	rollback := func() { session.Messages = session.Messages[:baseLen] }

	session.Append(diagent.NewUserMessage(guard.SanitizedInput))

	var (
		finalContent string
		callRecords  []diagent.ToolCallRecord
		toolMarks    []reasoning.ToolMark
		lastResp     *diagent.LLMResponse
		resolved     bool
	)

	for iteration := 0; iteration < maxRounds; iteration++ {
		choice := diagent.ToolChoiceAuto
		if iteration == 0 {
			// Gather evidence before opining.
			choice = diagent.ToolChoiceRequired
		}

		result, err := s.callModel(ctx, session, choice, iteration, logger)
		if err != nil {
			rollback()
			return nil, err
		}
		s.noteRouting(session, result, think)
		lastResp = result.Response
		addUsage(&diag.Usage, result.Response.Usage)

		s.validate(result.Response, &diag, think, logger)

		if len(result.Response.ToolCalls) == 0 {
			session.Append(diagent.NewAssistantMessage(result.Response.Content, nil))
			finalContent = result.Response.Content
			resolved = true
			think("iteration %d: diagnostic phase complete", iteration+1)
			break
		}

		session.Append(diagent.NewAssistantMessage(result.Response.Content, result.Response.ToolCalls))
		think("iteration %d: model requested %d tool call(s)", iteration+1, len(result.Response.ToolCalls))

		for _, call := range result.Response.ToolCalls {
			record, mark := s.executeTool(ctx, session, call, &diag, think, emit, logger)
			callRecords = append(callRecords, record)
			toolMarks = append(toolMarks, mark)
		}
	}

	// Loop exhaustion is not an error: force a closing answer with tools
	// disabled instead of looping forever.
	if !resolved {
		think("tool round limit (%d) reached, forcing closing answer", maxRounds)
		result, err := s.callModel(ctx, session, diagent.ToolChoiceNone, maxRounds, logger)
		if err != nil {
			rollback()
			return nil, err
		}
		s.noteRouting(session, result, think)
		lastResp = result.Response
		addUsage(&diag.Usage, result.Response.Usage)
		s.validate(result.Response, &diag, think, logger)

		// A backend may still return calls despite tool_choice=none;
		// they are dropped, not executed.
		session.Append(diagent.NewAssistantMessage(result.Response.Content, nil))
		finalContent = result.Response.Content
	}

	s.storeReasoning(session, lastResp, finalContent, toolMarks)

	if emit != nil && finalContent != "" {
		emit(diagent.StreamEvent{
			Type:      diagent.StreamContent,
			SessionID: session.ID,
			Content:   finalContent,
			Timestamp: time.Now(),
		})
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	logger.Info("turn complete",
		zap.Int("tool_calls", len(callRecords)),
		zap.Float64("confidence", diag.ConfidenceScore),
		zap.Bool("had_fallback", session.HadFallback),
	)

	return &diagent.TurnResponse{
		Content:     finalContent,
		ToolCalls:   callRecords,
		SessionID:   session.ID,
		Diagnostics: diag,
	}, nil
}

// callModel assembles the outgoing prompt (session messages plus injected
// reasoning context) and routes the call.
func (s *Service) callModel(
	ctx context.Context,
	session *diagent.Session,
	choice diagent.ToolChoice,
	iteration int,
	logger *zap.Logger,
) (*router.Result, error) {
	messages := s.assemblePrompt(session)

	result, err := s.deps.Router.Chat(ctx, diagent.ChatRequest{
		Messages:    messages,
		Tools:       s.deps.Registry.Definitions(),
		ToolChoice:  choice,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		logger.Error("model call failed",
			zap.Int("iteration", iteration),
			zap.String("tool_choice", string(choice)),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

// assemblePrompt copies the session's messages, injecting reasoning context
// from prior turns right after the system prompt, rendered for the active
// provider.
func (s *Service) assemblePrompt(session *diagent.Session) []diagent.Message {
	context := s.deps.Reasoning.ContextForPrompt(session.ID, session.Provider, s.cfg.MaxContextChars)
	if context == "" {
		return session.Messages
	}

	messages := make([]diagent.Message, 0, len(session.Messages)+1)
	inserted := false
	for i, msg := range session.Messages {
		messages = append(messages, msg)
		if i == 0 && msg.Role == diagent.RoleSystem {
			messages = append(messages, diagent.NewSystemMessage(
				reasoningPreamble(session.Provider)+"\n"+context))
			inserted = true
		}
	}
	if !inserted {
		messages = append([]diagent.Message{diagent.NewSystemMessage(
			reasoningPreamble(session.Provider) + "\n" + context)}, messages...)
	}
	return messages
}

// validate runs the response validator. Errors degrade confidence but never
// abort the turn: the engine favors availability over strict rejection.
// Warnings are logged only.
func (s *Service) validate(
	resp *diagent.LLMResponse,
	diag *diagent.Diagnostics,
	think func(string, ...any),
	logger *zap.Logger,
) {
	result := s.deps.Validator.ValidateResponse(resp, s.cfg.ExpectedSequence)
	for _, e := range result.Errors {
		metrics.ValidationIssuesTotal.WithLabelValues("error").Inc()
		logger.Warn("response validation error", zap.String("error", e))
		think("validation error: %s", e)
	}
	for _, w := range result.Warnings {
		metrics.ValidationIssuesTotal.WithLabelValues("warning").Inc()
		logger.Debug("response validation warning", zap.String("warning", w))
	}
	if len(result.Errors) > 0 {
		diag.ConfidenceScore = clamp(diag.ConfidenceScore - confidenceValidation)
	}
}

// executeTool runs one tool call, appends the tool message, and adjusts
// confidence. Tool failure is not fatal: partial diagnostic evidence is
// still useful to the agent.
func (s *Service) executeTool(
	ctx context.Context,
	session *diagent.Session,
	call diagent.ToolCall,
	diag *diagent.Diagnostics,
	think func(string, ...any),
	emit diagent.StreamFunc,
	logger *zap.Logger,
) (diagent.ToolCallRecord, reasoning.ToolMark) {
	if emit != nil {
		emit(diagent.StreamEvent{
			Type:      diagent.StreamToolCall,
			SessionID: session.ID,
			ToolCall:  &diagent.ToolCallRecord{Name: call.Name, Arguments: call.Args},
			Timestamp: time.Now(),
		})
	}

	outcome := s.deps.Registry.Execute(ctx, call)
	session.Append(diagent.NewToolMessage(outcome))

	if outcome.Success {
		diag.ConfidenceScore = clamp(diag.ConfidenceScore + confidenceToolSuccess)
		think("executed %s in %s: success", call.Name, outcome.Duration.Round(time.Millisecond))
	} else {
		diag.ConfidenceScore = clamp(diag.ConfidenceScore - confidenceToolFailure)
		think("executed %s in %s: failed (%s)", call.Name, outcome.Duration.Round(time.Millisecond), outcome.Error)
		logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("error", outcome.Error),
		)
	}

	diag.ToolsUsed = append(diag.ToolsUsed, diagent.ToolUse{
		Name:       call.Name,
		Success:    outcome.Success,
		DurationMS: outcome.Duration.Milliseconds(),
	})

	record := diagent.ToolCallRecord{
		Name:       call.Name,
		Arguments:  call.Args,
		Result:     outcome.Content,
		Success:    outcome.Success,
		DurationMS: outcome.Duration.Milliseconds(),
	}
	if !outcome.Success {
		record.Result = outcome.Error
	}

	if emit != nil {
		emit(diagent.StreamEvent{
			Type:      diagent.StreamToolResult,
			SessionID: session.ID,
			ToolCall:  &record,
			Timestamp: time.Now(),
		})
	}

	return record, reasoning.ToolMark{Name: call.Name, Success: outcome.Success}
}

// noteRouting records fallback use on the session for analytics.
func (s *Service) noteRouting(session *diagent.Session, result *router.Result, think func(string, ...any)) {
	if result.HadFallback && !session.HadFallback {
		session.HadFallback = true
		think("primary backend failed, served by fallback %s", result.Backend)
	}
	if session.Model == "" {
		session.Model = result.Model
	}
}

// storeReasoning condenses this turn into the reasoning cache, preferring
// the provider's raw reasoning text over the answer content.
func (s *Service) storeReasoning(
	session *diagent.Session,
	lastResp *diagent.LLMResponse,
	finalContent string,
	marks []reasoning.ToolMark,
) {
	condensed := finalContent
	continuationID := ""
	if lastResp != nil {
		if lastResp.Reasoning != "" {
			condensed = lastResp.Reasoning
		}
		continuationID = lastResp.ContinuationID
	}
	if condensed == "" && len(marks) == 0 {
		return
	}
	s.deps.Reasoning.Store(session.ID, condensed, continuationID, marks, session.Provider)
}

// resolveSession returns the state for the given id, creating a fresh
// session (with a provider-selected system prompt) when the id is empty or
// unknown.
func (s *Service) resolveSession(id string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if state, ok := s.sessions[id]; ok {
			return state
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	provider := s.activeProvider()
	session := &diagent.Session{
		ID:        id,
		CreatedAt: time.Now(),
		Provider:  provider,
	}
	session.Append(diagent.NewSystemMessage(systemPrompt(provider, s.cfg.ExpectedSequence)))

	state := &sessionState{session: session}
	s.sessions[id] = state
	return state
}

// activeProvider asks the router which provider family is active. Routers
// that do not expose it get the OpenAI-family default formatting.
func (s *Service) activeProvider() diagent.Provider {
	if pr, ok := s.deps.Router.(interface{ ActiveProvider() diagent.Provider }); ok {
		return pr.ActiveProvider()
	}
	return diagent.ProviderOpenAI
}

func addUsage(total *diagent.TokenUsage, u diagent.TokenUsage) {
	total.InputTokens += u.InputTokens
	total.OutputTokens += u.OutputTokens
	total.TotalTokens += u.TotalTokens
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compile-time check.
var _ ChatRouter = (*router.Router)(nil)
