// Package app wires the repositories, the analysis pipeline and the services
// shared by the server and the CLI.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/joseph-ayodele/acuvera/internal/analysis"
	"github.com/joseph-ayodele/acuvera/internal/analyzer"
	"github.com/joseph-ayodele/acuvera/internal/analyzer/openai"
	"github.com/joseph-ayodele/acuvera/internal/async"
	"github.com/joseph-ayodele/acuvera/internal/bills"
	"github.com/joseph-ayodele/acuvera/internal/common"
	"github.com/joseph-ayodele/acuvera/internal/dashboard"
	"github.com/joseph-ayodele/acuvera/internal/export"
	"github.com/joseph-ayodele/acuvera/internal/extract"
	"github.com/joseph-ayodele/acuvera/internal/ingest"
	"github.com/joseph-ayodele/acuvera/internal/mobile"
	"github.com/joseph-ayodele/acuvera/internal/repository"
	"github.com/joseph-ayodele/acuvera/internal/storage"
)

// OpenDB picks the store: a private in-memory sqlite when inMemory is set,
// Postgres when DB_URL is set, else the sqlite file at DB_SQLITE_PATH.
func OpenDB(ctx context.Context, cfg *common.Config, inMemory bool, logger *slog.Logger) (*repository.DB, error) {
	switch {
	case inMemory:
		return repository.OpenSQLite(ctx, "", logger)
	case cfg.Database.DSN != "":
		return repository.Open(ctx, repository.Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
	default:
		return repository.OpenSQLite(ctx, cfg.Database.SQLitePath, logger)
	}
}

type App struct {
	Config       *common.Config
	DB           *repository.DB
	Users        repository.UserRepository
	Orgs         repository.OrganizationRepository
	Repos        analysis.Repositories
	Store        storage.Store
	Orchestrator *analysis.Orchestrator
	Bills        *bills.Service
	Dashboard    *dashboard.Service
	Mobile       *mobile.Service
	Export       *export.Service
	Inbox        *ingest.Inbox

	// Queue and Recovery are nil when analysis runs inline.
	Queue    *async.Queue
	Recovery *async.Recovery

	log *slog.Logger
	wg  sync.WaitGroup
}

// New builds the application over db. inline runs every analysis on the
// caller's goroutine regardless of SYNC_ANALYSIS.
func New(ctx context.Context, cfg *common.Config, db *repository.DB, inline bool, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		DB:     db,
		Users:  repository.NewUserRepository(db, logger),
		Orgs:   repository.NewOrganizationRepository(db, logger),
		Repos: analysis.Repositories{
			Bills:     repository.NewBillRepository(db, logger),
			Jobs:      repository.NewAnalysisJobRepository(db, logger),
			LineItems: repository.NewLineItemRepository(db, logger),
			Findings:  repository.NewFindingRepository(db, logger),
			Tx:        db,
		},
		Store: store,
		log:   logger,
	}

	var an analyzer.Analyzer
	if cfg.AnalyzerEnabled() {
		an = openai.NewClient(openai.ConfigFrom(cfg.Analyzer), logger)
	} else {
		logger.Info("analyzer disabled, using fallback analysis", "demo_mode", cfg.Analysis.DemoMode)
	}
	ex := extract.NewExtractor(extract.ConfigFrom(cfg.Extractor), store, logger)
	a.Orchestrator = analysis.NewOrchestrator(analysis.ConfigFrom(cfg), a.Repos, ex, an,
		analysis.NewFallbackGenerator(cfg.Analysis.FallbackDelay), logger)

	billsCfg := bills.ConfigFrom(cfg)
	var enq async.Enqueuer
	if inline || cfg.Queue.SyncAnalysis {
		billsCfg.SyncAnalysis = true
	} else {
		a.Queue = async.NewQueue(a.Orchestrator, logger,
			async.WithWorkers(cfg.Queue.Workers),
			async.WithQueueSize(cfg.Queue.Size),
			async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
		)
		a.Recovery = async.NewRecovery(async.RecoveryConfig{
			Interval:    cfg.Queue.RecoveryInterval,
			Grace:       cfg.Queue.RecoveryGrace,
			StaleAfter:  cfg.Queue.StaleAfter,
			MaxAttempts: cfg.Queue.MaxAttempts,
		}, a.Repos.Jobs, a.Orchestrator, a.Queue, nil, logger)
		enq = a.Queue
	}

	a.Bills = bills.NewService(billsCfg, bills.Deps{
		Store:     store,
		Bills:     a.Repos.Bills,
		Jobs:      a.Repos.Jobs,
		LineItems: a.Repos.LineItems,
		Findings:  a.Repos.Findings,
		Tx:        db,
		Pipeline:  a.Orchestrator,
		Queue:     enq,
	}, logger)
	a.Dashboard = dashboard.NewService(a.Orgs, a.Repos.Bills, a.Repos.Findings, nil, logger)
	a.Mobile = mobile.NewService(a.Repos.Bills, a.Repos.Jobs, a.Repos.LineItems, a.Repos.Findings, nil, logger)
	a.Export = export.NewService(a.Orgs, a.Repos.Bills, a.Repos.LineItems, a.Repos.Findings, logger)
	if cfg.Inbox.Dir != "" {
		a.Inbox = ingest.NewInbox(ingest.InboxConfigFrom(cfg), a.Users, a.Bills, logger)
	}
	return a, nil
}

// Start launches the recovery poller and the inbox watcher. Both stop with ctx.
func (a *App) Start(ctx context.Context) {
	if a.Recovery != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.Recovery.Run(ctx)
		}()
	}
	if a.Inbox != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.Inbox.Run(ctx); err != nil {
				a.log.Error("inbox stopped", "error", err)
			}
		}()
	}
}

// Shutdown waits for the background loops, drains the queue until ctx ends
// and closes the database once no worker is running. Jobs cut short by the
// deadline end FAILED or stay PENDING for the recovery poller.
func (a *App) Shutdown(ctx context.Context) {
	a.wg.Wait()
	if a.Queue != nil {
		a.Queue.Shutdown(ctx)
	}
	a.DB.Close(a.log)
}
