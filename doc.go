// Package diagent is the conversation orchestration engine behind an
// LLM-driven network diagnostic assistant. A user describes a connectivity
// problem in natural language and the engine drives a model through a
// disciplined tool-calling sequence (adapter, IP configuration, gateway, DNS,
// internet reachability) until it can produce a grounded finding.
//
// The root package holds the shared data model and capability interfaces.
// Behavior lives in the subpackages:
//
//   - guardrails: input validation and prompt-injection screening
//   - router: backend selection, retry with backoff, fallback
//   - registry: tool registration and dispatch
//   - validator: response checking against the live tool registry
//   - reasoning: condensed cross-turn reasoning cache
//   - orchestrator: per-session state and the bounded tool-round loop
//
// # Quick Start
//
//	llm, _ := openai.New(openai.WithToken(apiKey))
//	backend := router.NewLangChainBackend(llm, "primary", diagent.ProviderOpenAI, "gpt-4o")
//	rt := router.New(backend, nil, router.DefaultRetryPolicy(), logger)
//
//	reg := registry.NewInMemory(logger)
//	registry.RegisterNetworkTools(reg, probes)
//
//	svc := orchestrator.New(orchestrator.Deps{
//	    Router:     rt,
//	    Registry:   reg,
//	    Guardrails: guardrails.New(guardrails.DefaultConfig(), logger),
//	    Validator:  validator.New(reg),
//	    Reasoning:  reasoning.NewCache(reasoning.DefaultConfig()),
//	    Logger:     logger,
//	}, orchestrator.DefaultConfig())
//
//	resp, err := svc.Chat(ctx, diagent.TurnRequest{Message: "my wifi is down"})
package diagent
