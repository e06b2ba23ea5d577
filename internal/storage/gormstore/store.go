// Package gormstore: реализация хранилища поверх gorm: SQLite для локального
// запуска без внешних зависимостей и PostgreSQL через gorm-драйвер.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Dialect определяет SQL-движок под gorm.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const (
	defaultPingTimeout   = 5 * time.Second
	defaultSlowThreshold = 200 * time.Millisecond
)

// Store владеет *gorm.DB и пулом соединений под ним.
type Store struct {
	db      *gorm.DB
	dialect Dialect
}

// Open подключается к базе, включает внешние ключи для SQLite и проверяет соединение.
// Для SQLite пул ограничен одним соединением: ":memory:" живёт ровно в нём,
// а запись в SQLite всё равно сериализуется.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *log.Entry) (*Store, error) {
	if logger == nil {
		logger = log.WithField("component", "gormstore")
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn))
	case DialectPostgres:
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("gorm postgres dsn is required")
		}
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm dialect: %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger: gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             defaultSlowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if dialect == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		if err := db.WithContext(ctx).Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	store := &Store{db: db, dialect: dialect}
	if err := store.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	return store, nil
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "_foreign_keys=") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// AutoMigrate создаёт или дополняет таблицы по моделям.
func (s *Store) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// DB возвращает *gorm.DB для низкоуровневого доступа (тесты, диагностика).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Dialect возвращает SQL-движок хранилища.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("gorm store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// readTxOptions: согласованный снимок для чтения заказа с позициями.
// SQLite с одним соединением и так сериализует доступ, уровни изоляции не нужны.
func (s *Store) readTxOptions() []*sql.TxOptions {
	if s.dialect != DialectPostgres {
		return nil
	}
	return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead, ReadOnly: true}}
}

// lockProductForKeyShare блокирует строку товара до конца транзакции (только PostgreSQL).
func (s *Store) lockProductForKeyShare(tx *gorm.DB) *gorm.DB {
	if s.dialect != DialectPostgres {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "KEY SHARE"})
}
