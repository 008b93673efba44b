package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Suganthan96/NCP/internal/config"
	"github.com/Suganthan96/NCP/internal/db"
	"github.com/Suganthan96/NCP/internal/engine"
	"github.com/Suganthan96/NCP/internal/migrate"
)

// App bundles the opened database, the loaded config, and a ready
// engine for one workspace.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine *engine.Engine
}

// Open prepares a workspace: it creates the .ncp directory if missing,
// opens the database, applies pending migrations, loads ncp.yml
// (built-in defaults when absent), and sweeps expired session keys.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	if _, err := eng.SweepSessionKeys(ctx, "system"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sweep session keys: %w", err)
	}
	return &App{DB: conn, Config: cfg, Engine: eng}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
