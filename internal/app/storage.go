package app

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/file"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/memory"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/sqlite"
	"github.com/aussiebroadwan/todo/pkg/cryptox"
)

// openStorage opens the configured driver, creating the data dir for the
// on-disk ones.
func (app *Application) openStorage() error {
	switch app.cfg.StorageDriver {
	case "memory":
		app.store = memory.NewStore()
		return nil
	case "file":
		s, err := file.NewStore(app.cfg.StorageFile)
		if err != nil {
			return fmt.Errorf("failed to open storage file: %w", err)
		}
		app.store = s
		return nil
	case "sqlite", "":
		if err := os.MkdirAll(app.cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data dir: %w", err)
		}
		s, err := sqlite.NewStore(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := s.ApplyMigrations(); err != nil {
			_ = s.Close()
			return fmt.Errorf("failed to apply database migrations: %w", err)
		}
		app.logger.Debug("database migrations applied", "file", app.cfg.DatabaseFile)
		app.store = s
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", app.cfg.StorageDriver)
	}
}

// openSealer keys the session record from the master key file. The memory
// driver keeps nothing on disk, so there is nothing to seal.
func (app *Application) openSealer() (*cryptox.Sealer, error) {
	if app.cfg.StorageDriver == "memory" {
		return nil, nil
	}

	master, err := cryptox.LoadOrCreateMasterKey(app.cfg.MasterKeyFile)
	if err != nil {
		return nil, err
	}
	return cryptox.NewSealer(master, storage.SessionRecordKey)
}
