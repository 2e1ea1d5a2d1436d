/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"card-settlement-go/internal/models"
	"card-settlement-go/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Compile-time check: *Service must satisfy store.CardStore.
var _ store.CardStore = (*Service)(nil)

type Service struct {
	db      *sql.DB
	dialect goose.Dialect
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	// Validate configuration
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	var (
		db      *sql.DB
		dialect goose.Dialect
		err     error
	)
	switch cfg.Driver {
	case "", "sqlite3":
		if cfg.Path == "" {
			return nil, fmt.Errorf("database path cannot be empty")
		}
		zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
		db, err = sql.Open("sqlite3", sqliteDsn(cfg))
		dialect = goose.DialectSQLite3
	case "postgres":
		if cfg.Url == "" {
			return nil, fmt.Errorf("database url cannot be empty for postgres")
		}
		zap.L().Info("Opening PostgreSQL database")
		db, err = sql.Open("pgx", cfg.Url)
		dialect = goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("unable to ping database: %w", err), closeErr)
	}

	if err := runMigrations(ctx, db, dialect); err != nil {
		closeErr := db.Close()
		return nil, errors.Join(fmt.Errorf("unable to initialize schema: %w", err), closeErr)
	}

	service := &Service{db: db, dialect: dialect}

	if cfg.CreateDummyUsers {
		service.createDummyUsers(ctx)
	} else {
		zap.L().Info("Skipping dummy user creation (CREATE_DUMMY_USERS=false)")
	}

	zap.L().Info("Database service initialized successfully", zap.String("dialect", string(dialect)))
	return service, nil
}

func sqliteDsn(cfg models.DatabaseConfig) string {
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_foreign_keys=on&_txlock=immediate&_busy_timeout=%d",
		cfg.Path, busy.Milliseconds())
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// Ping reports whether the database is reachable
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (s *Service) rebind(query string) string {
	if s.dialect != goose.DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique constraint failure on either backend.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		zap.L().Warn("Failed to roll back transaction", zap.Error(err))
	}
}

func nullable(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func now() time.Time {
	return time.Now().UTC()
}

func (s *Service) createDummyUsers(ctx context.Context) {
	alice, err := s.CreateUser(ctx, store.CreateUserParams{
		Name:               "Alice Johnson",
		Email:              "alice.johnson@example.com",
		VerificationStatus: "verified",
	})
	if errors.Is(err, store.ErrDuplicateUser) {
		zap.L().Info("Dummy users already present")
		return
	}
	if err != nil {
		zap.L().Error("Failed to insert dummy user", zap.String("name", "Alice Johnson"), zap.Error(err))
		return
	}
	zap.L().Info("Dummy user created", zap.String("id", alice.Id), zap.String("name", alice.Name))

	bob, err := s.CreateUser(ctx, store.CreateUserParams{
		Name:               "Bob Smith",
		Email:              "bob.smith@example.com",
		ParentUserId:       alice.Id,
		VerificationStatus: "verified",
	})
	if err != nil {
		zap.L().Error("Failed to insert dummy user", zap.String("name", "Bob Smith"), zap.Error(err))
		return
	}
	zap.L().Info("Dummy sub-user created",
		zap.String("id", bob.Id),
		zap.String("name", bob.Name),
		zap.String("parent_user_id", alice.Id))
}
