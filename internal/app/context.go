package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"capeline/internal/config"
	"capeline/internal/db"
	"capeline/internal/domain"
	"capeline/internal/engine"
	"capeline/internal/gateway"
	"capeline/internal/migrate"
	"capeline/internal/repo"
)

// Session is an opened workspace: its config, database and the engine over both.
type Session struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

func (s *Session) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Open loads capeline.yml (defaults when absent), opens and migrates the workspace
// database and wires the generation gateway from config.
func Open(workspace string) (*Session, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Session{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    engine.New(conn, cfg, gateway.FromConfig(cfg.Gateway)),
	}, nil
}

// ResolveSave returns the save in slot, starting a new game there when the slot is empty.
// The bool reports whether a game was created.
func ResolveSave(ctx context.Context, e engine.Engine, slot, actorID string) (domain.SaveFile, bool, error) {
	if actorID != "" {
		ctx = engine.WithActor(ctx, actorID)
	}
	s, err := e.Load(ctx, slot)
	if err == nil {
		return s, false, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.SaveFile{}, false, err
	}
	s, err = e.NewGame(ctx, slot, domain.NewGameOptions{}, false)
	if err != nil {
		return domain.SaveFile{}, false, fmt.Errorf("seed save %s: %w", slot, err)
	}
	return s, true, nil
}
