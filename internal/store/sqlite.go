package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbbuilder-org/quento/internal/domain"
	_ "modernc.org/sqlite"
)

// State keys. The adapter is an opaque key-value store: each manager owns
// one key and the value is its serialized state.
const (
	keyAuth         = "auth"
	keyConversation = "conversation"
	keyAnalysis     = "analysis"
	keyStrategy     = "strategy"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// isSQLiteConflict reports whether the error is a SQLITE_BUSY or
// "database is locked" concurrency error, which warrants a retry.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}

// execRetry runs an exec with exponential backoff on SQLite concurrency
// errors: 100ms, 200ms, 400ms.
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil || !isSQLiteConflict(err) {
			return err
		}
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(baseDelay * time.Duration(1<<i)):
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, err)
}

func (s *SQLiteStore) put(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s state: %w", key, err)
	}

	query := `
	INSERT INTO client_state (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	if err := s.execRetry(ctx, query, key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert %s state: %w", key, err)
	}
	return nil
}

// get unmarshals the stored value into out. Returns false when the key has
// never been written.
func (s *SQLiteStore) get(ctx context.Context, key string, out any) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key)

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan %s state: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s state: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) remove(ctx context.Context, key string) error {
	if err := s.execRetry(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s state: %w", key, err)
	}
	return nil
}

// SaveCredentials durably mirrors the credential pair.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, creds domain.Credentials) error {
	return s.put(ctx, keyAuth, AuthState{Credentials: creds, Authenticated: !creds.Empty()})
}

// LoadCredentials returns the persisted auth state, or nil.
func (s *SQLiteStore) LoadCredentials(ctx context.Context) (*AuthState, error) {
	var st AuthState
	ok, err := s.get(ctx, keyAuth, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// ClearCredentials removes the persisted pair.
func (s *SQLiteStore) ClearCredentials(ctx context.Context) error {
	return s.remove(ctx, keyAuth)
}

// SaveConversationState persists the conversation id and ring phase. The
// message history stays server-side.
func (s *SQLiteStore) SaveConversationState(ctx context.Context, conversationID string, phase domain.RingPhase) error {
	return s.put(ctx, keyConversation, ConversationState{ConversationID: conversationID, RingPhase: phase})
}

// LoadConversationState returns the persisted pointer, or nil.
func (s *SQLiteStore) LoadConversationState(ctx context.Context) (*ConversationState, error) {
	var st ConversationState
	ok, err := s.get(ctx, keyConversation, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SaveAnalysisState persists the analysis pointer and last results.
func (s *SQLiteStore) SaveAnalysisState(ctx context.Context, id, websiteURL string, results *domain.AnalysisResults) error {
	return s.put(ctx, keyAnalysis, AnalysisState{AnalysisID: id, WebsiteURL: websiteURL, Results: results})
}

// LoadAnalysisState returns the persisted analysis state, or nil.
func (s *SQLiteStore) LoadAnalysisState(ctx context.Context) (*AnalysisState, error) {
	var st AnalysisState
	ok, err := s.get(ctx, keyAnalysis, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

// SaveStrategySnapshot persists the last strategy wholesale.
func (s *SQLiteStore) SaveStrategySnapshot(ctx context.Context, strategy *domain.Strategy) error {
	return s.put(ctx, keyStrategy, strategy)
}

// LoadStrategySnapshot returns the persisted strategy, or nil.
func (s *SQLiteStore) LoadStrategySnapshot(ctx context.Context) (*domain.Strategy, error) {
	var st domain.Strategy
	ok, err := s.get(ctx, keyStrategy, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}
