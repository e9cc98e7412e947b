// Package bootstrap assembles stores, the model client and services from
// config. Both binaries use it.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/llm"
	firestorestore "github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/firestore"
	memstore "github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/memory"
	sqlitestore "github.com/Mind-Measure/mind-measure-mobile-sub003/internal/adapters/storage/sqlite"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/analysis"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/finalize"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/report"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/sessions"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/app/trend"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/config"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/domain"
	"github.com/Mind-Measure/mind-measure-mobile-sub003/internal/observability"
)

type App struct {
	SessionStore domain.SessionStore
	TrendStore   domain.TrendStore

	Sessions  *sessions.Service
	Analysis  *analysis.Service
	Finalizer *finalize.Finalizer
	Reports   *report.Service
	Trends    *trend.Service

	closers []func() error
}

// Close waits for detached work and releases the stores.
func (a *App) Close() error {
	a.Finalizer.Wait()
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New wires the application. withLLM=false skips the model client entirely,
// which the CLI uses for read-only commands.
func New(ctx context.Context, cfg *config.Config, withLLM bool) (*App, error) {
	log := observability.Logger()
	app := &App{}

	switch cfg.StorageBackend {
	case config.BackendFirestore:
		log.Info("using Firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		// 1 store, implements 2 interfaces
		app.SessionStore, app.TrendStore = fs, fs
		app.closers = append(app.closers, fs.Close)

	case config.BackendSQLite:
		log.Info("using SQLite storage", "path", cfg.SQLitePath)
		db, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("initializing SQLite store: %w", err)
		}
		app.SessionStore, app.TrendStore = db, db
		app.closers = append(app.closers, db.Close)

	default:
		log.Info("using in-memory storage")
		app.SessionStore = memstore.NewSessionStore()
		app.TrendStore = memstore.NewTrendStore()
	}

	var (
		analyzer domain.Analyzer
		narrator domain.Narrator
	)
	if withLLM {
		if cfg.MockLLM() {
			log.Info("using mock LLM client")
			mock := llm.NewMockLLM()
			analyzer, narrator = mock, mock
		} else {
			log.Info("using Vertex LLM client", "model", cfg.ModelName, "location", cfg.GCPLocation)
			vc, err := llm.NewVertexClient(ctx, llm.VertexConfig{
				Project:   cfg.GCPProjectID,
				Location:  cfg.GCPLocation,
				ModelName: cfg.ModelName,
			})
			if err != nil {
				return nil, fmt.Errorf("initializing Vertex LLM client: %w", err)
			}
			analyzer, narrator = vc, vc
		}
	}
	if !cfg.ReportNarrative {
		narrator = nil
	}

	app.Sessions = sessions.NewService(app.SessionStore)
	app.Analysis = analysis.NewService(analyzer, cfg.AnalysisTimeout)
	app.Finalizer = finalize.NewFinalizer(
		app.Sessions,
		app.Analysis,
		trend.NewRecorder(app.TrendStore),
		finalize.Options{CaptureStopGrace: cfg.CaptureStopGrace},
	)
	app.Reports = report.NewService(app.SessionStore, narrator, report.Options{
		DriverLimit:  cfg.ReportDriverLimit,
		SummaryLimit: cfg.ReportSummaryLimit,
	})
	app.Trends = trend.NewService(app.TrendStore)

	return app, nil
}
