// Package server assembles the central offsync server: it opens
// PostgreSQL, migrates it, creates the synchronised tables from the schema
// file and serves offsync.v1.SyncService until a termination signal.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/schema"
	"github.com/dmitrijs2005/offsync/internal/server/config"
	"github.com/dmitrijs2005/offsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/offsync/internal/server/services"
	"github.com/dmitrijs2005/offsync/internal/server/snapshots"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/offsync/internal/server/grpc"
)

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	syncService *services.SyncService
	publisher   *snapshots.Publisher
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, logging.FormatJSON, level)

	s, err := schema.LoadFile(c.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("schema load error: %w", err)
	}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	if err := m.EnsureTables(ctx, db, s); err != nil {
		db.Close()
		return nil, err
	}

	ss := services.NewSyncService(db, m, s, services.WithLogger(logger))
	ps := snapshots.NewPublisher(db, m, ss, c, logger)

	logger.Info(ctx, "Schema loaded", "path", c.SchemaPath, "tables", len(s.Tables))
	return &App{config: c, logger: logger, db: db, syncService: ss, publisher: ps}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a signal arrives or the gRPC server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.db.Close()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.publisher, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	return nil
}
