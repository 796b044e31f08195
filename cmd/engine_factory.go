package cmd

import (
	"fmt"

	"CorpusAgent/pkg/engine/middleware"
	"CorpusAgent/pkg/engine/runtime"
	"CorpusAgent/pkg/engine/session"
	"CorpusAgent/pkg/engine/store"
	"CorpusAgent/pkg/engine/tools"
	"CorpusAgent/pkg/logger"
)

// newOrchestrator wires the full engine from config: remote agent client,
// corpus tool registry, session store and local persistence.
func newOrchestrator(cfg *Config) (*runtime.Orchestrator, error) {
	if cfg.Agent.APIKey == "" {
		return nil, fmt.Errorf("AGENT_API_KEY environment variable is required")
	}

	threads, err := store.NewFileThreadStore(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create thread store: %w", err)
	}
	turnLog, err := store.NewTurnLog(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create turn log: %w", err)
	}

	agent := runtime.NewHTTPAgentClient(cfg.Agent.BaseURL, cfg.Agent.APIKey)
	sessions := session.NewStore(session.NewHTTPConversationAPI(cfg.Agent.BaseURL, cfg.Agent.APIKey))
	registry := tools.CorpusRegistry(cfg.CorpusRoot)

	logger.Info("Factory", "Engine initialized", map[string]interface{}{
		"corpus_root": cfg.CorpusRoot,
		"state_dir":   cfg.StateDir,
		"model":       cfg.Model,
		"tools":       registry.Names(),
	})

	return runtime.NewOrchestrator(runtime.Config{
		Agent:    agent,
		Tools:    registry,
		Sessions: sessions,
		Threads:  threads,
		TurnLog:  turnLog,
		Cancels:  runtime.NewRegistry(),
		Instructions: middleware.NewChain(
			middleware.NewPreambleBuilder(),
			middleware.NewNotesBuilder(cfg.CorpusRoot),
			middleware.NewDirectivesBuilder(),
		),
		Model:         cfg.Model,
		MaxRoundTrips: cfg.MaxRoundTrips,
		TurnTimeout:   cfg.TurnTimeout(),
	})
}
