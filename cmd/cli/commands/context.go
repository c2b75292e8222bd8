package commands

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/internal/config"
	"github.com/jakechorley/live-schedule/pkg/core/services"
	"github.com/jakechorley/live-schedule/pkg/db"
	"github.com/jakechorley/live-schedule/pkg/lock"
)

// Migrator applies pending schema migrations and returns the files it ran
type Migrator interface {
	RunMigrations(ctx context.Context) ([]string, error)
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Cfg       *config.Config
	Database  db.Database
	Migrator  Migrator
	Generator services.Generator
	Locker    lock.Locker
	Logger    *zap.Logger
	Ctx       context.Context

	// Now is the clock used for export file names
	Now func() time.Time
}
