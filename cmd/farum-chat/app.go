package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/PabloGalante/farum-chat/internal/adapters/llm"
	firestorestore "github.com/PabloGalante/farum-chat/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-chat/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/farum-chat/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-chat/internal/app/conversation"
	"github.com/PabloGalante/farum-chat/internal/config"
	"github.com/PabloGalante/farum-chat/internal/domain"
	"github.com/PabloGalante/farum-chat/internal/observability"
)

// app owns the service and everything that must be released on exit.
type app struct {
	cfg     *config.Config
	svc     *conversation.Service
	closers []func(context.Context) error
}

// newApp wires logging, telemetry, the store and the LLM client from cfg.
// logOut is used when no log file is configured.
func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{cfg: cfg}

	logCloser, err := observability.Init(observability.LogConfig{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Output: logOut,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return logCloser.Close() })

	if cfg.TelemetryEnabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.TelemetryConfig{
			Dir:            cfg.TelemetryDir,
			ServiceVersion: version,
		})
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	client, err := newCompletionClient(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	opts := []conversation.Option{conversation.WithMaxTokens(cfg.MaxTokens)}
	if cfg.SystemPrompt != "" {
		opts = append(opts, conversation.WithSystemPrompt(cfg.SystemPrompt))
	}
	a.svc = conversation.NewService(client, store, conversation.NewCache(), opts...)

	return a, nil
}

func (a *app) openStore(ctx context.Context) (domain.ChatStore, error) {
	log := observability.Logger()

	switch a.cfg.StorageBackend {
	case config.StorageFirestore:
		log.Info("using firestore storage", "project", a.cfg.GCPProjectID)
		s, err := firestorestore.NewStore(ctx, a.cfg.GCPProjectID)
		if err != nil {
			return nil, fmt.Errorf("error initializing Firestore store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		return s, nil

	case config.StorageSQLite:
		log.Info("using sqlite storage", "path", a.cfg.SQLitePath, "driver", a.cfg.SQLiteDriver)
		s, err := sqlitestore.Open(ctx, a.cfg.SQLiteDriver, a.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("error initializing SQLite store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		return s, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewStore(), nil
	}
}

func newCompletionClient(ctx context.Context, cfg *config.Config) (domain.CompletionClient, error) {
	temp := cfg.Temperature
	params := llm.Params{
		Model:       cfg.ModelName,
		MaxTokens:   cfg.MaxTokens,
		Temperature: &temp,
		TopP:        cfg.TopP,
	}

	var (
		client domain.CompletionClient
		err    error
	)
	switch cfg.LLMProvider {
	case config.ProviderVertex:
		client, err = llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, params)
	case config.ProviderOpenAI:
		client, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, params)
	case config.ProviderAnthropic:
		client, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, params)
	default:
		client = llm.NewMockLLM()
	}
	if err != nil {
		return nil, fmt.Errorf("error initializing %s LLM client: %w", cfg.LLMProvider, err)
	}
	observability.Logger().Info("using llm provider", "provider", cfg.LLMProvider)

	policy := llm.DefaultRetryPolicy()
	policy.MaxRetries = cfg.RetryAttempts

	return llm.Instrument(llm.WithRetry(client, policy), cfg.LLMProvider), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
