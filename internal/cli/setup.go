// Package cli implements the flowagent CLI commands.
package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/firebase/genkit/go/genkit"
	googleai "github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	flowagent "github.com/frostholm/flowagent"
	"github.com/frostholm/flowagent/internal/cache"
	"github.com/frostholm/flowagent/internal/capability"
	"github.com/frostholm/flowagent/internal/chain"
	"github.com/frostholm/flowagent/internal/config"
	"github.com/frostholm/flowagent/internal/eventbus"
	"github.com/frostholm/flowagent/internal/llm"
	"github.com/frostholm/flowagent/internal/memory"
	"github.com/frostholm/flowagent/internal/registry"
	"github.com/frostholm/flowagent/internal/router"
)

// runtime bundles everything a command needs to serve queries.
type runtime struct {
	agent        *flowagent.Agent
	orchestrator *chain.ChainOrchestrator
	cache        *cache.InMemoryCache
}

func (r *runtime) close() {
	if r.cache != nil {
		r.cache.Stop()
	}
	if r.agent != nil {
		_ = r.agent.Close()
	}
}

// buildRuntime loads configuration and wires the full agent.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	g, modelName, err := initGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	collaborator := llm.NewGenkitCollaborator(g,
		llm.WithModelName(modelName),
		llm.WithTimeout(cfg.QueryTimeout),
	)

	client := capability.NewClient(
		capability.WithTimeout(cfg.HTTPTimeout),
		capability.WithRateLimit(cfg.RequestsPerSec),
		capability.WithUserAgent(cfg.NominatimAgent),
	)

	reg := registry.Build(capability.Modules(client, cfg.WAQIToken)...)

	mem := memory.New(
		memory.WithMaxMessages(cfg.MaxMessages),
		memory.WithMaxToolUsages(cfg.MaxToolUsages),
	)

	executor := registry.NewExecutor(reg, mem)
	stepCache := cache.NewInMemoryCache(cfg.CacheTTL)

	bus := eventbus.NewChannelEventBus()
	if verbose {
		if _, err := bus.SubscribeAll(logEvent); err != nil {
			log.Printf("Failed to attach verbose event subscriber: %v", err)
		}
	}

	rt := router.New(reg, collaborator, mem)
	orchestrator := chain.New(reg, executor, collaborator, stepCache, mem,
		chain.WithMaxAttempts(cfg.MaxAttempts),
		chain.WithRetryDelay(cfg.RetryDelay),
		chain.WithStepTimeout(cfg.StepTimeout),
		chain.WithEventBus(bus),
	)

	agent, err := flowagent.New(
		flowagent.WithRegistry(reg),
		flowagent.WithExecutor(executor),
		flowagent.WithRouter(rt),
		flowagent.WithOrchestrator(orchestrator),
		flowagent.WithMemory(mem),
		flowagent.WithCollaborator(collaborator),
		flowagent.WithEventBus(bus),
	)
	if err != nil {
		stepCache.Stop()
		_ = bus.Close()
		return nil, fmt.Errorf("building agent: %w", err)
	}

	return &runtime{
		agent:        agent,
		orchestrator: orchestrator,
		cache:        stepCache,
	}, nil
}

// logEvent is the verbose-mode subscriber: one line per internal event.
func logEvent(ctx context.Context, event eventbus.Event) error {
	log.Printf("[event] %s (source: %s, payload: %v)", event.Type(), event.Source(), event.Payload())
	return nil
}

// initGenkit starts genkit with the configured provider plugin and returns
// the fully qualified model name.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, string, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g, err := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if err != nil {
			return nil, "", fmt.Errorf("initializing genkit with ollama provider: %w", err)
		}
		// Ollama requires explicit model registration.
		plugin.DefineModel(g, ollama.ModelDefinition{Name: cfg.ModelName, Type: "chat"}, nil)
		return g, "ollama/" + cfg.ModelName, nil

	case config.ProviderGoogleAI:
		g, err := genkit.Init(ctx, genkit.WithPlugins(&googleai.GoogleAI{}))
		if err != nil {
			return nil, "", fmt.Errorf("initializing genkit with googleai provider: %w", err)
		}
		return g, "googleai/" + cfg.ModelName, nil

	default:
		return nil, "", fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
