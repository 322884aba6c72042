package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadyv/diagent"
)

func echoHandler(content string) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		return content, nil
	}
}

func TestRegister_Panics(t *testing.T) {
	type input struct {
		def     diagent.ToolDefinition
		handler Handler
	}

	tests := []struct {
		name  string
		input input
	}{
		{
			name:  "empty name",
			input: input{def: diagent.ToolDefinition{}, handler: echoHandler("x")},
		},
		{
			name:  "nil handler",
			input: input{def: diagent.ToolDefinition{Name: "t"}, handler: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewInMemory(nil)
			assert.Panics(t, func() {
				r.Register(tt.input.def, tt.input.handler)
			})
		})
	}

	t.Run("duplicate name", func(t *testing.T) {
		r := NewInMemory(nil)
		r.Register(diagent.ToolDefinition{Name: "t"}, echoHandler("x"))
		assert.Panics(t, func() {
			r.Register(diagent.ToolDefinition{Name: "t"}, echoHandler("y"))
		})
	})
}

func TestDefinitions_RegistrationOrder(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "zebra"}, echoHandler("z"))
	r.Register(diagent.ToolDefinition{Name: "alpha"}, echoHandler("a"))

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "zebra", defs[0].Name)
	assert.Equal(t, "alpha", defs[1].Name)

	assert.Equal(t, []string{"alpha", "zebra"}, r.Names())
}

func TestDefinition_Lookup(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "ping_gateway"}, echoHandler("pong"))

	def, ok := r.Definition("ping_gateway")
	require.True(t, ok)
	assert.Equal(t, "ping_gateway", def.Name)

	_, ok = r.Definition("absent")
	assert.False(t, ok)
}

func TestExecute_Success(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "ping_gateway"}, echoHandler(`{"received": 4}`))

	outcome := r.Execute(context.Background(), diagent.ToolCall{
		ID:   "call_1",
		Name: "ping_gateway",
		Args: map[string]any{"count": float64(4)},
	})

	assert.True(t, outcome.Success)
	assert.Equal(t, `{"received": 4}`, outcome.Content)
	assert.Equal(t, "call_1", outcome.CallID)
	assert.Equal(t, "ping_gateway", outcome.Name)
	assert.Empty(t, outcome.Error)
}

func TestExecute_UnknownToolNeverPanics(t *testing.T) {
	r := NewInMemory(nil)

	outcome := r.Execute(context.Background(), diagent.ToolCall{
		ID:   "call_1",
		Name: "launch_rockets",
	})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, `unknown tool: "launch_rockets"`)
}

func TestExecute_HandlerError(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "resolve_dns"},
		func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("no such host")
		})

	outcome := r.Execute(context.Background(), diagent.ToolCall{Name: "resolve_dns"})

	assert.False(t, outcome.Success)
	assert.Equal(t, "no such host", outcome.Error)
}

func TestExecute_HandlerPanicBecomesFailedOutcome(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "explode"},
		func(ctx context.Context, args map[string]any) (string, error) {
			panic("boom")
		})

	outcome := r.Execute(context.Background(), diagent.ToolCall{Name: "explode"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "panicked")
	assert.Contains(t, outcome.Error, "boom")
}

func TestExecute_Timeout(t *testing.T) {
	r := NewInMemory(nil).WithExecutionTimeout(10 * time.Millisecond)
	r.Register(diagent.ToolDefinition{Name: "slow"},
		func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "done", nil
			}
		})

	outcome := r.Execute(context.Background(), diagent.ToolCall{Name: "slow"})

	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "deadline")
	assert.Less(t, outcome.Duration, time.Second)
}

func TestExecute_RecordsDuration(t *testing.T) {
	r := NewInMemory(nil)
	r.Register(diagent.ToolDefinition{Name: "t"},
		func(ctx context.Context, args map[string]any) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "ok", nil
		})

	outcome := r.Execute(context.Background(), diagent.ToolCall{Name: "t"})

	assert.GreaterOrEqual(t, outcome.Duration, 5*time.Millisecond)
}

func TestRegisterNetworkTools(t *testing.T) {
	t.Run("all probes registered", func(t *testing.T) {
		stub := echoHandler("{}")
		r := NewInMemory(nil)
		RegisterNetworkTools(r, NetworkProbes{
			CheckAdapterStatus: stub,
			GetIPConfig:        stub,
			PingGateway:        stub,
			ResolveDNS:         stub,
			CheckInternet:      stub,
		})

		assert.Equal(t, DiagnosticSequence(), namesInOrder(r))
	})

	t.Run("nil probes skipped", func(t *testing.T) {
		r := NewInMemory(nil)
		RegisterNetworkTools(r, NetworkProbes{
			CheckAdapterStatus: echoHandler("{}"),
		})

		assert.Equal(t, []string{ToolCheckAdapterStatus}, namesInOrder(r))
	})

	t.Run("resolve_dns requires hostname", func(t *testing.T) {
		stub := echoHandler("{}")
		r := NewInMemory(nil)
		RegisterNetworkTools(r, NetworkProbes{ResolveDNS: stub})

		def, ok := r.Definition(ToolResolveDNS)
		require.True(t, ok)

		var required []string
		for _, p := range def.Parameters {
			if p.Required {
				required = append(required, p.Name)
			}
		}
		assert.Equal(t, []string{"hostname"}, required)
	})
}

func namesInOrder(r *InMemory) []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}
	return names
}
