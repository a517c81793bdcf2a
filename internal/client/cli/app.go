package cli

import (
	"context"
	"database/sql"
	"io"

	"github.com/dmitrijs2005/offsync/internal/client/config"
	"github.com/dmitrijs2005/offsync/internal/client/engine"
	"github.com/dmitrijs2005/offsync/internal/client/store"
	"github.com/dmitrijs2005/offsync/internal/client/syncer"
	"github.com/dmitrijs2005/offsync/internal/client/transport"
	"github.com/dmitrijs2005/offsync/internal/logging"
	"github.com/dmitrijs2005/offsync/internal/schema"
)

// Test seams.
var (
	initConfig = config.Initialize

	newTransport = func(cfg *config.Config) (transport.Client, error) {
		return transport.NewGRPCClient(cfg.ServerEndpointAddr, cfg.AccessToken, cfg.RequestTimeout)
	}

	engineOptions []engine.Option
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	engine *engine.Engine
}

func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logOut, logging.FormatText, level)

	s, err := schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(ctx, cfg.DatabasePath, s)
	if err != nil {
		return nil, err
	}

	opts := append([]engine.Option{engine.WithLogger(logger)}, engineOptions...)
	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		engine: engine.New(db, s, opts...),
	}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// Syncer connects to the server and returns a sync loop with a closer for
// the connection.
func (a *App) Syncer() (*syncer.Syncer, func() error, error) {
	client, err := newTransport(a.config)
	if err != nil {
		return nil, nil, err
	}
	return syncer.New(a.engine, client, a.config, syncer.WithLogger(a.logger)), client.Close, nil
}
