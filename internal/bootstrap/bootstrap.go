package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmpolyakov/ai-drive-agent/internal/config"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/ports"
	"github.com/dmpolyakov/ai-drive-agent/internal/core/usecase"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/drive"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/ledger/memledger"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/ledger/natskv"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/llm/gemini"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/memory/drivemem"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/oauth/google"
	natsqueue "github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/queue/nats"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/repository/postgres"
	"github.com/dmpolyakov/ai-drive-agent/internal/infrastructure/resilience"
	"github.com/dmpolyakov/ai-drive-agent/internal/observability/logging"
	"github.com/dmpolyakov/ai-drive-agent/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue  *natsqueue.Queue
	Ledger ports.PendingLedger

	Credentials *usecase.CredentialUseCase
	OAuth       ports.OAuthProvider
	AgentUC     ports.AgentService
	MemoryUC    ports.MemoryService
	WriterUC    ports.InteractionWriter

	Metrics       *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	logger := logging.Setup(service, cfg.LogLevel)
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	httpMetrics := metrics.NewHTTPServerMetrics(service)
	workerMetrics := metrics.NewWorkerMetrics(service)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	cipher, err := postgres.NewTokenCipher([]byte(cfg.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("init token cipher: %w", err)
	}
	tokens := postgres.NewTokenRepository(db, cipher)
	if err := tokens.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	oauth := google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURI)
	credentials := usecase.NewCredentialUseCase(tokens, oauth)

	driveClient := drive.New(cfg.DriveAPIURL, cfg.DocsAPIURL)
	planner := gemini.New(cfg.GeminiURL, cfg.GeminiAPIKey, cfg.GeminiModel, executor)
	memoryStore := drivemem.New(driveClient, cfg.MemoryFolderName, cfg.SummariesFolderName)

	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init interaction queue: %w", err)
	}

	ledger, err := buildLedger(ctx, cfg, queue, httpMetrics, service, logger)
	if err != nil {
		queue.Close()
		return nil, err
	}

	writer := usecase.NewMemoryWriterUseCase(credentials, planner, memoryStore, logger)
	toolset := usecase.NewToolset(driveClient, planner, memoryStore)
	agentUC := usecase.NewAgentUseCase(
		credentials,
		planner,
		memoryStore,
		toolset,
		ledger,
		queue,
		writer,
		domain.AgentLimits{
			MaxIterations:  cfg.AgentMaxIterations,
			Timeout:        time.Duration(cfg.AgentTimeoutSeconds) * time.Second,
			PlannerTimeout: time.Duration(cfg.AgentPlannerTimeoutSeconds) * time.Second,
			ToolTimeout:    time.Duration(cfg.AgentToolTimeoutSeconds) * time.Second,
			RecentMemory:   cfg.AgentRecentMemory,
			StepOutputCap:  cfg.AgentStepOutputCap,
		},
		logger,
	)
	memoryUC := usecase.NewMemoryQueryUseCase(credentials, memoryStore)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:  queue,
		Ledger: ledger,

		Credentials: credentials,
		OAuth:       oauth,
		AgentUC:     agentUC,
		MemoryUC:    memoryUC,
		WriterUC:    writer,

		Metrics:       httpMetrics,
		WorkerMetrics: workerMetrics,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// buildLedger selects the pending-action backend. The in-memory ledger is
// the default and runs its own expiry sweeper; the NATS KV ledger relies
// on the bucket TTL instead.
func buildLedger(ctx context.Context, cfg config.Config, queue *natsqueue.Queue, m *metrics.HTTPServerMetrics, service string, logger *slog.Logger) (ports.PendingLedger, error) {
	switch cfg.LedgerBackend {
	case "nats":
		ledger, err := natskv.New(queue.Conn(), cfg.LedgerBucket, cfg.LedgerTTL)
		if err != nil {
			return nil, fmt.Errorf("init nats kv ledger: %w", err)
		}
		return ledger, nil
	default:
		ledger := memledger.New(cfg.LedgerTTL)
		go ledger.RunSweeper(ctx, cfg.LedgerSweepEvery, func(expired int) {
			m.RecordPendingExpired(service, expired)
			logger.Info("pending actions expired", "count", expired)
		})
		return ledger, nil
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
