package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/markdave123-py/samurai-chat/internal/config"
	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/core/context_engine"
	db "github.com/markdave123-py/samurai-chat/internal/core/database"
	"github.com/markdave123-py/samurai-chat/internal/core/dispatcher"
	"github.com/markdave123-py/samurai-chat/internal/core/llm"
	"github.com/markdave123-py/samurai-chat/internal/core/mirror"
	objectclient "github.com/markdave123-py/samurai-chat/internal/core/object-client"
	"github.com/markdave123-py/samurai-chat/internal/services"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBClient *db.DatabaseClient
	Server   *Server

	background interface{ Wait() }
	closers    []func() error
}

// Services groups everything the HTTP layer calls into.
type Services struct {
	DB        core.DbClient
	Users     *services.UserService
	Convs     *services.ConversationService
	Catalog   *services.CatalogService
	Responses *services.ResponseService
	Chat      *services.ChatService
}

// EngineFactory builds the inference engine once the response sink exists.
type EngineFactory func(sink core.ResponseSink) (core.InferenceEngine, error)

// NewLogger returns the process-wide JSON logger.
func NewLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Logger: logger}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient.Close)
	logger.Info("database initialized and ready", "driver", cfg.DatabaseDriver)

	respMirror, err := newMirror(appCtx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	svcs, err := BuildServices(cfg, dbClient, respMirror, a.engineFactory(appCtx, cfg, logger), logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Server = NewServer(cfg, svcs, logger)
	return a, nil
}

func newMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.ResponseMirror, error) {
	if cfg.MirrorBucket == "" {
		return mirror.NewFileMirror(cfg.ResourcesDir, logger)
	}
	objClient, err := objectclient.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return mirror.NewS3Mirror(objClient, cfg.MirrorBucket, logger)
}

func (a *App) engineFactory(ctx context.Context, cfg *config.Config, logger *slog.Logger) EngineFactory {
	return func(sink core.ResponseSink) (core.InferenceEngine, error) {
		switch cfg.EngineBackend {
		case config.EngineGemini:
			provider, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
			if err != nil {
				return nil, fmt.Errorf("couldn't initialize the gemini client: %w", err)
			}
			a.closers = append(a.closers, provider.Close)
			engine := llm.NewGeminiEngine(provider, sink, cfg.DispatchTimeout, logger)
			a.background = engine
			logger.Info("inference engine ready", "backend", "gemini", "model", cfg.GenModel)
			return engine, nil
		default:
			engine, err := dispatcher.NewWebhookEngine(dispatcher.WebhookOptions{
				URL:        cfg.EngineWebhookURL,
				Secret:     cfg.EngineSecret,
				Timeout:    cfg.DispatchTimeout,
				Retries:    cfg.DispatchRetries,
				RetryDelay: cfg.DispatchRetryDelay,
				Logger:     logger,
			})
			if err != nil {
				return nil, err
			}
			logger.Info("inference engine ready", "backend", "webhook")
			return engine, nil
		}
	}
}

// BuildServices wires the service layer over a database client.
func BuildServices(cfg *config.Config, dbClient core.DbClient, respMirror core.ResponseMirror, newEngine EngineFactory, logger *slog.Logger) (*Services, error) {
	convs := services.NewConversationService(dbClient, logger)
	catalog := services.NewCatalogService(dbClient, services.NewDirectoryBootstrapper(cfg.UserDataRoot), cfg.MaxNameProbes, logger)
	responses := services.NewResponseService(convs, respMirror, logger)

	engine, err := newEngine(responses)
	if err != nil {
		return nil, err
	}

	assembler := context_engine.NewAssembler(
		context_engine.NewTabularExtractor(),
		context_engine.NewDocconvExtractor(false),
		cfg.ContextWorkers,
		logger,
	)

	return &Services{
		DB:        dbClient,
		Users:     services.NewUserService(dbClient),
		Convs:     convs,
		Catalog:   catalog,
		Responses: responses,
		Chat:      services.NewChatService(convs, catalog, assembler, engine, logger),
	}, nil
}

// Close waits for background generations and releases clients in reverse order.
func (a *App) Close() {
	if a.background != nil {
		a.background.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
}
