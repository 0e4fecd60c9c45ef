// Package server initializes and runs the encrypted-search application:
// it wires configuration, storage, the envelope key manager, the ledger
// oracle and the search engine, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ztmed/emrsearch/internal/logging"
	"github.com/ztmed/emrsearch/internal/server/accessgate"
	"github.com/ztmed/emrsearch/internal/server/config"
	"github.com/ztmed/emrsearch/internal/server/kms"
	"github.com/ztmed/emrsearch/internal/server/ledger"
	"github.com/ztmed/emrsearch/internal/server/repositories/repomanager"
	"github.com/ztmed/emrsearch/internal/server/search"
)

// App owns the process-wide service instances. Everything is constructed
// once here and passed by reference; no component reaches for globals.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	keys   *kms.Manager
	engine *search.Engine
}

// NewApp wires all services from the given configuration.
func NewApp(c *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	kmsOpts := kms.Options{
		Mode:         kms.Mode(c.KMSMode),
		MasterSecret: c.MasterKeySecret,
		MasterSalt:   c.MasterKeySalt,
	}
	if kmsOpts.Mode == kms.ModeVaultTransit {
		kmsOpts.Transit = kms.NewHTTPTransitClient(c.TransitAddress, c.TransitToken)
		kmsOpts.TransitKeyName = c.TransitKeyName
	}
	keys, err := kms.NewManager(rm.EnvelopeKeys(db), kmsOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("kms init error: %w", err)
	}

	oracle := ledger.NewHTTPOracle(c.LedgerAddress)
	gate := accessgate.New(rm.Index(db), oracle, c.AccessCheckBatchSize, logger)

	engine := search.NewEngine(db, rm, gate, keys, search.Options{
		JWTSecret:        []byte(c.SecretKey),
		PBKDF2Iterations: c.PBKDF2Iterations,
		SessionTTL:       c.SessionTTL,
		EncryptBatchSize: c.EncryptBatchSize,
	}, logger)

	return &App{config: c, logger: logger, db: db, keys: keys, engine: engine}, nil
}

// Engine exposes the search engine to the embedding transport layer.
func (app *App) Engine() *search.Engine {
	return app.engine
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run blocks until the context is cancelled or a termination signal
// arrives, then releases resources, zeroing the master key last.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "kms_mode", app.config.KMSMode)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.engine.RunSessionCleanup(ctx, app.config.SessionCleanupInterval)
	}()

	<-ctx.Done()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
	app.keys.Close()

	app.logger.Info(context.Background(), "app stopped")
}
