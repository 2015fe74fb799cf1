package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialects maps database/sql driver names to goose dialects.
var dialects = map[string]string{
	"sqlite": "sqlite3",
	"pgx":    "postgres",
}

type Store struct {
	db     *sqlx.DB
	driver string
	loc    *time.Location
	log    logx.Logger
}

// Open connects, applies pending migrations and returns a ready store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (*Store, error) {
	driver, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if driver == "sqlite" {
		if dsn == "" {
			dsn = "./data/remindbot.db"
		}
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create data directory: %w", err)
		}
	} else if dsn == "" {
		return nil, fmt.Errorf("storage: dsn is required for driver %q", cfg.Driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	if driver == "sqlite" {
		// SQLite prefers a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		busy := cfg.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		for _, pragma := range []string{
			fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
			}
		}
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := migrate(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	log.Info("storage ready", logx.String("driver", driver))
	return &Store{db: db, driver: driver, loc: loc, log: log}, nil
}

func driverName(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return "sqlite", nil
	case "postgres", "postgresql", "pgx":
		return "pgx", nil
	default:
		return "", fmt.Errorf("storage: unknown driver %q", s)
	}
}

func migrate(ctx context.Context, db *sqlx.DB, driver string) error {
	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage: migrations dir: %w", err)
	}
	goose.SetBaseFS(dir)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialects[driver]); err != nil {
		return fmt.Errorf("storage: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("storage: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
