package local

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-sqlite3"

	"bodytweaker/internal/infrastructure/migration"
)

// SQLiteBackend хранит пары key/value в файле SQLite, схему поднимают миграции
type SQLiteBackend struct {
	db    *sql.DB
	quota int64

	// сериализует проверку квоты и запись
	mu sync.Mutex
}

// NewSQLiteBackend применяет миграции и открывает базу.
// quota <= 0 отключает собственную проверку квоты (остается только SQLITE_FULL).
func NewSQLiteBackend(path string, quota int64) (*SQLiteBackend, error) {
	if err := migration.NewMigration(path, migration.DefaultEngine).Up(); err != nil {
		return nil, fmt.Errorf("ошибка миграции локальной базы: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &SQLiteBackend{db: db, quota: quota}, nil
}

func (s *SQLiteBackend) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения ключа %q: %w", key, mapError(err))
	}
	return value, true, nil
}

func (s *SQLiteBackend) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used, err := s.usedExcept(key)
		if err != nil {
			return err
		}
		if used+entrySize(key, value) > s.quota {
			return ErrQuotaExceeded
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи ключа %q: %w", key, mapError(err))
	}
	return nil
}

func (s *SQLiteBackend) Remove(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("ошибка удаления ключа %q: %w", key, mapError(err))
	}
	return nil
}

func (s *SQLiteBackend) Keys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key",
		utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", mapError(err))
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключа: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Used - сколько байт занято всеми записями
func (s *SQLiteBackend) Used() (int64, error) {
	return s.usedExcept("")
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) usedExcept(key string) (int64, error) {
	var used sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB)))
		FROM kv WHERE key <> ?
	`, key).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета занятого места: %w", mapError(err))
	}
	return used.Int64, nil
}

// mapError выделяет переполнение диска в ErrQuotaExceeded
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
