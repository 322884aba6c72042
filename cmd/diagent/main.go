// Command diagent is an interactive network-diagnostic chat. It wires the
// configured LLM backends, the host network probes, and the orchestrator
// into a readline loop with streamed tool activity.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/arkadyv/diagent"
	"github.com/arkadyv/diagent/config"
	"github.com/arkadyv/diagent/guardrails"
	"github.com/arkadyv/diagent/logging"
	"github.com/arkadyv/diagent/orchestrator"
	"github.com/arkadyv/diagent/reasoning"
	"github.com/arkadyv/diagent/registry"
	"github.com/arkadyv/diagent/router"
	"github.com/arkadyv/diagent/validator"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	offline := flag.Bool("offline", false, "use a scripted backend instead of a live provider")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := registry.NewInMemory(logger)
	registry.RegisterNetworkTools(reg, registry.SystemProbes())

	guardCfg := guardrails.Config{
		MinLength: cfg.Guardrails.MinLength,
		MaxLength: cfg.Guardrails.MaxLength,
		Strict:    cfg.Guardrails.Strict,
	}
	if cfg.Guardrails.RulesFile != "" {
		rules, err := guardrails.LoadRules(cfg.Guardrails.RulesFile)
		if err != nil {
			return fmt.Errorf("loading guardrail rules: %w", err)
		}
		guardCfg.Rules = rules
	}

	rt, err := buildRouter(cfg, *offline, logger)
	if err != nil {
		return err
	}

	svc := orchestrator.New(orchestrator.Deps{
		Router:     rt,
		Registry:   reg,
		Guardrails: guardrails.New(guardCfg, logger),
		Validator:  validator.New(reg),
		Reasoning: reasoning.NewCache(reasoning.Config{
			MaxSessions:          cfg.Reasoning.MaxSessions,
			MaxEntriesPerSession: cfg.Reasoning.MaxEntriesPerSession,
			TTL:                  cfg.Reasoning.TTL,
			MaxReasoningChars:    cfg.Reasoning.MaxReasoningChars,
		}),
		Logger: logger,
	}, orchestrator.Config{
		MaxToolRounds:    cfg.Orchestrator.MaxToolRounds,
		Temperature:      cfg.Orchestrator.Temperature,
		MaxContextChars:  cfg.Orchestrator.MaxContextChars,
		ExpectedSequence: registry.DiagnosticSequence(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return chatLoop(ctx, svc, *offline)
}

// buildRouter constructs the primary and fallback backends from
// configuration. Offline mode substitutes a scripted backend that walks the
// first two diagnostic tools and closes with a canned summary.
func buildRouter(cfg *config.Config, offline bool, logger *zap.Logger) (*router.Router, error) {
	policy := router.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Jitter:      cfg.Retry.Jitter,
	}

	if offline {
		return router.New(offlineBackend(), nil, policy, logger).
			WithTimeout(cfg.Router.Timeout), nil
	}

	primary, err := buildBackend(cfg.Primary, "primary")
	if err != nil {
		return nil, err
	}
	var fallback diagent.Backend
	if cfg.Fallback.Configured() {
		fallback, err = buildBackend(cfg.Fallback, "fallback")
		if err != nil {
			return nil, err
		}
	}
	return router.New(primary, fallback, policy, logger).
		WithTimeout(cfg.Router.Timeout), nil
}

func buildBackend(bc config.BackendConfig, name string) (diagent.Backend, error) {
	switch bc.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(bc.Model)}
		if bc.APIKey != "" {
			opts = append(opts, openai.WithToken(bc.APIKey))
		}
		if bc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(bc.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating %s openai backend: %w", name, err)
		}
		return router.NewLangChainBackend(llm, name, diagent.ProviderOpenAI, bc.Model), nil

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(bc.Model)}
		if bc.APIKey != "" {
			opts = append(opts, anthropic.WithToken(bc.APIKey))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating %s anthropic backend: %w", name, err)
		}
		return router.NewLangChainBackend(llm, name, diagent.ProviderAnthropic, bc.Model), nil

	case "local":
		// Local servers (Ollama, llama.cpp, vLLM) speak the OpenAI wire
		// protocol; tool-choice forcing is emulated by the router.
		opts := []openai.Option{
			openai.WithModel(bc.Model),
			openai.WithToken("unused"),
		}
		if bc.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(bc.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating %s local backend: %w", name, err)
		}
		return router.NewLangChainBackend(llm, name, diagent.ProviderLocal, bc.Model).
			WithForcedToolUse(false), nil

	default:
		return nil, fmt.Errorf("unknown provider %q for %s backend", bc.Provider, name)
	}
}

func offlineBackend() *router.ScriptedBackend {
	return router.NewScriptedBackend(diagent.ProviderLocal,
		router.ScriptedStep{Response: &diagent.LLMResponse{
			ToolCalls: []diagent.ToolCall{{
				ID:      "call_1",
				Name:    registry.ToolCheckAdapterStatus,
				Args:    map[string]any{},
				RawArgs: "{}",
			}},
		}},
		router.ScriptedStep{Response: &diagent.LLMResponse{
			ToolCalls: []diagent.ToolCall{{
				ID:      "call_2",
				Name:    registry.ToolCheckInternet,
				Args:    map[string]any{},
				RawArgs: "{}",
			}},
		}},
		router.ScriptedStep{Response: &diagent.LLMResponse{
			Content: "I checked your adapter and internet reachability; see the tool output above for the details.",
		}},
	).WithName("scripted")
}

func chatLoop(ctx context.Context, svc *orchestrator.Service, offline bool) error {
	rl, err := readline.New(colorCyan + "you> " + colorReset)
	if err != nil {
		return fmt.Errorf("creating readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%sdiagent%s network diagnostic assistant", colorBold, colorReset)
	if offline {
		fmt.Printf(" %s(offline scripted mode)%s", colorYellow, colorReset)
	}
	fmt.Println()
	fmt.Printf("%sCommands: /sessions /history /new /delete <id> /quit%s\n\n", colorDim, colorReset)

	sessionID := ""
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := handleCommand(svc, line, &sessionID)
			if err != nil {
				fmt.Printf("%s%v%s\n", colorRed, err, colorReset)
			}
			if done {
				return nil
			}
			continue
		}

		err = svc.ChatStream(ctx, diagent.TurnRequest{
			SessionID: sessionID,
			Message:   line,
		}, printEvent(&sessionID))
		if err != nil {
			fmt.Printf("%sturn failed: %v%s\n", colorRed, err, colorReset)
		}
	}
}

func printEvent(sessionID *string) diagent.StreamFunc {
	return func(event diagent.StreamEvent) {
		switch event.Type {
		case diagent.StreamToolCall:
			fmt.Printf("%s  ⚙ %s%s\n", colorYellow, event.ToolCall.Name, colorReset)
		case diagent.StreamToolResult:
			status := colorGreen + "ok"
			if !event.ToolCall.Success {
				status = colorRed + "failed"
			}
			fmt.Printf("%s  ↳ %s: %s%s (%dms)%s\n",
				colorDim, event.ToolCall.Name, status, colorReset,
				event.ToolCall.DurationMS, colorReset)
		case diagent.StreamContent:
			fmt.Printf("\n%s%s%s\n", colorBold, event.Content, colorReset)
		case diagent.StreamDone:
			*sessionID = event.SessionID
			d := event.Response.Diagnostics
			fmt.Printf("%sconfidence %.1f, %d tool call(s), %d tokens%s\n\n",
				colorDim, d.ConfidenceScore, len(d.ToolsUsed),
				d.Usage.TotalTokens, colorReset)
		}
	}
}

// handleCommand processes a slash command. It returns true when the loop
// should exit.
func handleCommand(svc *orchestrator.Service, line string, sessionID *string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/new":
		*sessionID = ""
		fmt.Printf("%sstarted a new session%s\n", colorDim, colorReset)
		return false, nil

	case "/sessions":
		infos := svc.ListSessions()
		if len(infos) == 0 {
			fmt.Printf("%sno sessions%s\n", colorDim, colorReset)
			return false, nil
		}
		for _, info := range infos {
			marker := " "
			if info.ID == *sessionID {
				marker = "*"
			}
			fmt.Printf("%s %s  %d message(s)  %s\n",
				marker, info.ID, info.MessageCount, info.LastMessagePreview)
		}
		return false, nil

	case "/history":
		if *sessionID == "" {
			return false, fmt.Errorf("no active session")
		}
		messages, err := svc.SessionMessages(*sessionID)
		if err != nil {
			return false, err
		}
		for _, msg := range messages {
			printMessage(msg)
		}
		return false, nil

	case "/delete":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /delete <session-id>")
		}
		if err := svc.DeleteSession(fields[1]); err != nil {
			return false, err
		}
		if fields[1] == *sessionID {
			*sessionID = ""
		}
		fmt.Printf("%sdeleted %s%s\n", colorDim, fields[1], colorReset)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
}

func printMessage(msg diagent.Message) {
	ts := msg.CreatedAt.Format(time.Kitchen)
	switch msg.Role {
	case diagent.RoleUser:
		fmt.Printf("%s[%s] you:%s %s\n", colorCyan, ts, colorReset, msg.Content)
	case diagent.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, call := range msg.ToolCalls {
				names[i] = call.Name
			}
			fmt.Printf("%s[%s] assistant:%s (requested %s)\n",
				colorGreen, ts, colorReset, strings.Join(names, ", "))
		}
		if msg.Content != "" {
			fmt.Printf("%s[%s] assistant:%s %s\n", colorGreen, ts, colorReset, msg.Content)
		}
	case diagent.RoleTool:
		fmt.Printf("%s[%s] tool %s:%s %s\n",
			colorDim, ts, msg.Outcome.Name, colorReset, preview(msg.Outcome.Content, 120))
	}
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
