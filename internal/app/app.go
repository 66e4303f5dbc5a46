package app

import (
	"fmt"
	"os"
	"time"

	"idb-go/internal/attachments"
	"idb-go/internal/config"
	"idb-go/internal/database"
	"idb-go/internal/idb"
)

// IDBApp is the application layer between the CLI and the catalog Service.
// It constructs all dependencies from config and manages their lifecycle on
// Close.
type IDBApp struct {
	cfg         *config.Config
	db          idb.Database
	attachments idb.AttachmentStore
	service     *idb.Service
	logFile     *os.File
}

// NewIDBApp creates a fully wired IDBApp from the given config.
// The caller must call Close when done.
func NewIDBApp(cfg *config.Config) (*IDBApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date (run 'idb db init'): %w", err)
	}

	store, err := attachments.NewStoreFromConfig(cfg.Attachments)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating attachment store: %w", err)
	}
	if err := store.ValidateSetup(); err != nil {
		db.Close()
		return nil, fmt.Errorf("validating attachment store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	svc := idb.NewService(db, store, &slogAdapter{l: logger}, idb.RealClock{}, idb.UUIDGenerator{})

	return &IDBApp{
		cfg:         cfg,
		db:          db,
		attachments: store,
		service:     svc,
		logFile:     logFile,
	}, nil
}

// Service returns the wired catalog service.
func (a *IDBApp) Service() *idb.Service {
	return a.service
}

// Database returns the wired database, for commands that inspect it directly.
func (a *IDBApp) Database() idb.Database {
	return a.db
}

// Close closes all resources.
func (a *IDBApp) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// InitDatabase creates the database file if needed and migrates the schema
// to the latest version.
func InitDatabase(cfg config.DatabaseConfig) error {
	if cfg.Type == "sqlite" {
		if cfg.DataDir == "" {
			return fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sqldb, ok := db.(*database.SQLiteDatabase)
	if !ok {
		return fmt.Errorf("database type %s does not support migrations", cfg.Type)
	}
	if err := sqldb.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// DatabaseStatus reports the migration state of the configured database.
// A nil error means the schema is at the latest version.
func DatabaseStatus(cfg config.DatabaseConfig) error {
	db, err := database.NewDatabaseFromConfig(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.CheckMigrations()
}
