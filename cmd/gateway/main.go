// Gateway entry point: explicit constructor wiring of every component, then
// signal-driven shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pasarlink/gateway/pkg/api"
	"github.com/pasarlink/gateway/pkg/app"
	"github.com/pasarlink/gateway/pkg/commerce"
	"github.com/pasarlink/gateway/pkg/config"
	"github.com/pasarlink/gateway/pkg/cron"
	"github.com/pasarlink/gateway/pkg/dispatch"
	"github.com/pasarlink/gateway/pkg/domain"
	"github.com/pasarlink/gateway/pkg/domain/conversation"
	"github.com/pasarlink/gateway/pkg/domain/order"
	"github.com/pasarlink/gateway/pkg/infrastructure/eventbus"
	"github.com/pasarlink/gateway/pkg/infrastructure/persistence"
	"github.com/pasarlink/gateway/pkg/logger"
	"github.com/pasarlink/gateway/pkg/orchestrator"
	"github.com/pasarlink/gateway/pkg/providers"
	"github.com/pasarlink/gateway/pkg/tools"
	"github.com/pasarlink/gateway/pkg/transport"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)

	if err := run(cfg); err != nil {
		logger.ErrorCF("main", "gateway exited with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := eventbus.New()
	defer bus.Close()

	// --- Storage ---
	convRepo, closeConv, err := conversationStore(cfg)
	if err != nil {
		return err
	}
	defer closeConv()

	orderRepo, catalog := orderStore(cfg)

	// --- AI stack ---
	provider, err := llmProvider(cfg)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	registry.Register(&tools.ExtractOrderTool{})
	if catalog != nil {
		registry.Register(tools.NewListProductsTool(catalog))
	}

	orch := orchestrator.New(provider, registry, convRepo, orchestrator.NewMemoryCache(), bus, orchestrator.Options{
		SystemInstruction: cfg.AI.SystemPrompt,
		HistoryLimit:      cfg.AI.HistoryLimit,
		MaxToolRounds:     cfg.AI.MaxToolRounds,
		Temperature:       cfg.AI.Temperature,
		MaxOutputTokens:   cfg.AI.MaxOutputTokens,
	})

	// --- Transport + dispatch ---
	session := transport.NewBridgeSession(cfg.Gateway.BridgeURL)
	manager := transport.NewManager(session, bus, transport.Options{
		CountryCode:    cfg.Gateway.CountryCode,
		ReconnectDelay: time.Duration(cfg.Gateway.ReconnectDelaySec) * time.Second,
		MaxReconnects:  cfg.Gateway.MaxReconnects,
	})

	orders := app.NewOrderService(orderRepo, bus, cfg.Gateway.CountryCode)

	dispatcher := dispatch.NewDispatcher(
		dispatch.NewButtonHandler(orders, manager),
		dispatch.NewTextHandler(orch, orders, manager, cfg.Gateway.CountryCode),
		dispatch.NewMediaHandler(orch, manager, cfg.Gateway.CountryCode),
	)
	manager.SetBatchHandler(dispatcher.Dispatch)

	go manager.Start(ctx)

	// --- Maintenance ---
	sweeper := cron.NewSweeper(orders, orderRepo, manager, func() bool {
		return manager.GetStatus().State == domain.StateConnected
	}, cfg.Orders.SweepCron, time.Duration(cfg.Orders.PendingTTLMin)*time.Minute)
	go sweeper.Start(ctx)

	// --- Admin API ---
	server := api.NewServer(cfg, manager, orch, orders, bus)
	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	logger.InfoCF("main", "gateway started", map[string]interface{}{
		"provider": cfg.AI.Provider,
		"tools":    registry.List(),
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.InfoC("main", "shutting down")
	cancel()
	return nil
}

// conversationStore opens the SQLite dialogue log, falling back to the
// in-memory repository when the file cannot be opened.
func conversationStore(cfg *config.Config) (conversation.Repository, func(), error) {
	if cfg.Store.SQLitePath == "" {
		return persistence.NewMemoryConversationRepository(), func() {}, nil
	}
	repo, err := persistence.NewSQLiteConversationRepository(cfg.Store.SQLitePath)
	if err != nil {
		logger.WarnCF("main", "conversation store unavailable, using in-memory log", map[string]interface{}{
			"path":  cfg.Store.SQLitePath,
			"error": err.Error(),
		})
		return persistence.NewMemoryConversationRepository(), func() {}, nil
	}
	return repo, func() { repo.Close() }, nil
}

// orderStore selects the order repository: the commerce backend when a base
// URL is configured, the in-memory repository otherwise. The catalog is only
// available with a backend.
func orderStore(cfg *config.Config) (order.Repository, tools.Catalog) {
	if cfg.Commerce.BaseURL == "" {
		logger.WarnC("main", "no commerce base URL configured, orders are in-memory only")
		return persistence.NewMemoryOrderRepository(), nil
	}
	client := commerce.NewClient(cfg.Commerce.BaseURL, cfg.Commerce.APIToken,
		time.Duration(cfg.Commerce.TimeoutSec)*time.Second)
	return commerce.NewOrderRepository(client), client
}

func llmProvider(cfg *config.Config) (providers.LLMProvider, error) {
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("ai.api_key is required")
	}
	switch cfg.AI.Provider {
	case "anthropic":
		return providers.NewAnthropicProvider(cfg.AI.APIKey, cfg.AI.Model), nil
	default:
		return providers.NewOpenAIProvider(cfg.AI.APIKey, cfg.AI.Model), nil
	}
}
