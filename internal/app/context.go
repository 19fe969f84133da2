package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"siteforms/internal/config"
	"siteforms/internal/db"
	"siteforms/internal/engine"
	"siteforms/internal/migrate"
)

// Workspace is an opened site workspace: database migrated and config loaded.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Close releases the database.
func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open loads siteforms.yml from dir, opens the workspace database and
// applies pending migrations. siteOverride replaces the configured site id.
func Open(ctx context.Context, dir, siteOverride string, logger *slog.Logger) (*Workspace, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if siteOverride != "" {
		cfg.Site.ID = siteOverride
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", db.Path(dir), err)
	}
	applied, err := migrate.Apply(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	if logger != nil {
		e.Logger = logger
	}
	for _, m := range applied {
		e.Logger.Info("applied migration", "version", m.Version, "name", m.Name, "site", cfg.Site.ID)
	}
	return &Workspace{Dir: dir, DB: conn, Config: cfg, Engine: e}, nil
}

// Init writes a default siteforms.yml into dir. An existing file is kept
// unless force is set.
func Init(dir, siteID string, force bool) (string, error) {
	path := config.Path(dir)
	existing, err := config.LoadOptional(dir)
	if err != nil && !force {
		return "", err
	}
	if existing != nil && !force {
		return "", fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if _, err := db.EnsureWorkspace(dir); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault(siteID)), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
