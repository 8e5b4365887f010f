package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/circleboard/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type dbBackend struct {
	log logrus.FieldLogger
	cfg *config.StorageConfig
	db  *gorm.DB
}

func newDBBackend(log logrus.FieldLogger, cfg *config.StorageConfig) *dbBackend {
	return &dbBackend{
		log: log,
		cfg: cfg,
	}
}

// start opens the database connection and runs migrations.
func (b *dbBackend) start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch b.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(b.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			b.cfg.Postgres.Host,
			b.cfg.Postgres.Port,
			b.cfg.Postgres.User,
			b.cfg.Postgres.Password,
			b.cfg.Postgres.Database,
			b.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", b.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	b.db = db

	// A single connection serializes writers and keeps ":memory:"
	// databases from splitting across the pool.
	if b.cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	if err := b.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	b.log.WithField("driver", b.cfg.Driver).Info("Database connected")

	return nil
}

// stop closes the underlying database connection.
func (b *dbBackend) stop() error {
	if b.db == nil {
		return nil
	}

	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (b *dbBackend) get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry

	err := b.db.WithContext(ctx).
		Where("entry_key = ?", key).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("getting entry: %w", err)
	}

	return []byte(entry.Value), nil
}

// put inserts or replaces the entry keyed by key.
func (b *dbBackend) put(ctx context.Context, key string, value []byte) error {
	entry := Entry{Key: key}

	result := b.db.WithContext(ctx).
		Where("entry_key = ?", key).
		Assign(Entry{Value: string(value)}).
		FirstOrCreate(&entry)
	if result.Error != nil {
		return fmt.Errorf("upserting entry: %w", result.Error)
	}

	return nil
}
