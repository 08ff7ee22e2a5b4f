// Package app opens a workspace and wires the pieces every entry point needs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"sitelog/internal/config"
	"sitelog/internal/db"
	"sitelog/internal/engine"
	"sitelog/internal/engine/auth"
	"sitelog/internal/logging"
	"sitelog/internal/migrate"
	"sitelog/internal/notify"
	"sitelog/internal/repo"
)

type Options struct {
	// ConfigPath overrides <workspace>/sitelog.yml.
	ConfigPath string
	// Logger replaces the logger built from config.
	Logger *zap.Logger
}

// Runtime is an opened workspace. Close releases it.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Logger    *zap.Logger
	Engine    engine.Engine
	Notifier  *notify.Dispatcher
}

// Open loads config, opens and migrates the database and starts the
// notification worker.
func Open(ctx context.Context, workspace string, opts Options) (*Runtime, error) {
	cfg, err := loadConfig(workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	ResolveStorageDir(workspace, cfg)

	logger := opts.Logger
	if logger == nil {
		if logger, err = logging.New(cfg.Log); err != nil {
			return nil, err
		}
	}

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	e := engine.New(conn, cfg)
	e.Logger = logger.Named("engine")
	dispatcher := notify.NewDispatcher(e.Repo, logger, cfg)
	dispatcher.Start()
	e.Notifier = dispatcher

	return &Runtime{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Logger:    logger,
		Engine:    e,
		Notifier:  dispatcher,
	}, nil
}

func loadConfig(workspace, path string) (*config.Config, error) {
	if path != "" {
		return config.FromFile(path)
	}
	return config.Load(workspace)
}

// ResolveStorageDir points an unset storage dir at the workspace uploads
// directory and makes relative dirs relative to the workspace.
func ResolveStorageDir(workspace string, cfg *config.Config) {
	switch {
	case cfg.Storage.Dir == "":
		cfg.Storage.Dir = filepath.Join(db.Dir(workspace), "uploads")
	case !filepath.IsAbs(cfg.Storage.Dir):
		if workspace == "" {
			workspace = "."
		}
		cfg.Storage.Dir = filepath.Join(workspace, cfg.Storage.Dir)
	}
}

// Actor resolves a directory user into the identity lifecycle calls act as.
func (r *Runtime) Actor(ctx context.Context, userID string) (auth.Actor, error) {
	u, err := r.Engine.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Actor{}, fmt.Errorf("unknown user %q; add it with 'sitelog user add'", userID)
		}
		return auth.Actor{}, err
	}
	return auth.Actor{ID: u.ID, Role: u.Role}, nil
}

// Close drains queued notifications, then closes the database.
func (r *Runtime) Close() error {
	r.Notifier.Close()
	_ = r.Logger.Sync()
	return r.DB.Close()
}
