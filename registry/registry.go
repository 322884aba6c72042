// Package registry provides the in-memory tool registry consumed by the
// orchestration loop. Tool logic itself is registered by the caller; the
// engine only ever sees definitions and outcomes.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkadyv/diagent"
	"github.com/arkadyv/diagent/metrics"
)

// Handler executes one tool call. It returns the textual content folded back
// into the conversation. Handlers are expected to honor ctx deadlines; a
// handler error becomes a failed outcome, never a loop failure.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// InMemory is a name-to-callable tool registry. Registration happens at
// startup; lookups and execution are safe for concurrent use.
type InMemory struct {
	mu      sync.RWMutex
	tools   map[string]entry
	order   []string
	logger  *zap.Logger
	timeout time.Duration
}

type entry struct {
	def     diagent.ToolDefinition
	handler Handler
}

// NewInMemory creates an empty registry. A nil logger disables logging.
func NewInMemory(logger *zap.Logger) *InMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemory{
		tools:   make(map[string]entry),
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// WithExecutionTimeout bounds each tool execution. Zero disables the bound.
// Returns the registry for chaining.
func (r *InMemory) WithExecutionTimeout(d time.Duration) *InMemory {
	r.timeout = d
	return r
}

// Register adds a tool. Panics if the name is empty, the handler is nil, or
// a tool with the same name is already registered: these are programming
// errors at startup, not runtime conditions.
func (r *InMemory) Register(def diagent.ToolDefinition, handler Handler) *InMemory {
	if def.Name == "" {
		panic("registry: tool name must not be empty")
	}
	if handler == nil {
		panic("registry: tool handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		panic(fmt.Sprintf("registry: tool %q already registered", def.Name))
	}
	r.tools[def.Name] = entry{def: def, handler: handler}
	r.order = append(r.order, def.Name)
	return r
}

// Definitions implements diagent.ToolRegistry. Definitions are returned in
// registration order.
func (r *InMemory) Definitions() []diagent.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]diagent.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *InMemory) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// Definition implements diagent.ToolRegistry.
func (r *InMemory) Definition(name string) (diagent.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.def, ok
}

// Execute implements diagent.ToolRegistry. Unknown tools, handler errors,
// handler panics, and timeouts all produce a failed outcome; Execute never
// returns a Go error or panics, so the orchestration loop has no dispatch
// error path.
func (r *InMemory) Execute(ctx context.Context, call diagent.ToolCall) (outcome diagent.ToolOutcome) {
	outcome = diagent.ToolOutcome{CallID: call.ID, Name: call.Name}

	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		outcome.Error = fmt.Sprintf("unknown tool: %q", call.Name)
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return outcome
	}

	execCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		outcome.Duration = time.Since(start)
		if rec := recover(); rec != nil {
			outcome.Success = false
			outcome.Content = ""
			outcome.Error = fmt.Sprintf("tool %s panicked: %v", call.Name, rec)
			r.logger.Error("tool handler panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", rec),
			)
		}
		status := "ok"
		if !outcome.Success {
			status = "error"
		}
		metrics.ToolCallsTotal.WithLabelValues(call.Name, status).Inc()
	}()

	content, err := e.handler(execCtx, call.Args)
	if err != nil {
		outcome.Error = err.Error()
		r.logger.Warn("tool execution failed",
			zap.String("tool", call.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return outcome
	}

	outcome.Success = true
	outcome.Content = content
	r.logger.Debug("tool executed",
		zap.String("tool", call.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome
}

// Compile-time check.
var _ diagent.ToolRegistry = (*InMemory)(nil)
