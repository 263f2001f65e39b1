package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/ashureev/brieflab/internal/shared"
	_ "modernc.org/sqlite"
)

const backendSQLite = "sqlite"

// SQLiteStore implements ConversationStore and AccountRepository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	locks  *KeyedMutex
	retry  shared.RetryPolicy
	logger *slog.Logger
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		locks:  NewKeyedMutex(),
		retry:  shared.DefaultRetryPolicy,
		logger: logger,
	}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		password_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_briefs (
		owner TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		brief_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (owner, conversation_id, seq)
	);

	CREATE TABLE IF NOT EXISTS conversation_briefs_corrupted (
		owner TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		brief_json TEXT NOT NULL,
		archived_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_corrupted_conversation ON conversation_briefs_corrupted(owner, conversation_id);
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

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get returns the briefs of a conversation ordered by sequence number.
func (s *SQLiteStore) Get(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	briefs, err := loadBriefRows(ctx, s.db, key)
	if err == nil {
		return briefs, nil
	}
	if !errors.Is(err, errCorrupt) {
		return nil, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	briefs, err = s.loadLocked(ctx, key)
	if err != nil {
		s.logger.Error("Failed to quarantine corrupt conversation", "conversation_id", key.ID, "owner", key.Owner, "error", err)
		return []domain.Brief{}, nil
	}
	return briefs, nil
}

// Append inserts the brief as the next row of the conversation inside one
// transaction, serialized per conversation.
func (s *SQLiteStore) Append(ctx context.Context, key domain.ConversationKey, brief domain.Brief) (err error) {
	defer func() { recordAppend(backendSQLite, err) }()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := brief.Validate(); err != nil {
		return fmt.Errorf("append brief: %w", err)
	}

	data, err := json.Marshal(brief.Clone())
	if err != nil {
		return fmt.Errorf("%w: encode brief: %w", ErrStoreWrite, err)
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if _, err := s.loadLocked(ctx, key); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	var seq int64
	err = shared.RetryOnConflict(ctx, s.retry, "append brief", func() error {
		var txErr error
		seq, txErr = s.appendOnce(ctx, key, data)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	s.logger.Info("Appended brief to conversation", "conversation_id", key.ID, "owner", key.Owner, "seq", seq)
	return nil
}

func (s *SQLiteStore) appendOnce(ctx context.Context, key domain.ConversationKey, data []byte) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM conversation_briefs WHERE owner = ? AND conversation_id = ?`,
		key.Owner, key.ID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_briefs (owner, conversation_id, seq, brief_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		key.Owner, key.ID, seq, string(data), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert brief: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit append: %w", err)
	}
	return seq, nil
}

// Clear deletes every row of the conversation.
func (s *SQLiteStore) Clear(ctx context.Context, key domain.ConversationKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	err := shared.RetryOnConflict(ctx, s.retry, "clear conversation", func() error {
		_, execErr := s.db.ExecContext(ctx,
			`DELETE FROM conversation_briefs WHERE owner = ? AND conversation_id = ?`, key.Owner, key.ID)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	s.logger.Info("Cleared conversation", "conversation_id", key.ID, "owner", key.Owner)
	return nil
}

// List returns the distinct conversation ids for owner.
func (s *SQLiteStore) List(ctx context.Context, owner string) ([]string, error) {
	if owner == "" {
		owner = domain.DefaultOwner
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT conversation_id FROM conversation_briefs WHERE owner = ?`, owner)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close conversation rows", "error", closeErr)
		}
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return ids, nil
}

// loadLocked reads the conversation and moves corrupt rows to the
// quarantine table. Callers must hold the conversation's lock.
func (s *SQLiteStore) loadLocked(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error) {
	briefs, err := loadBriefRows(ctx, s.db, key)
	if err == nil {
		return briefs, nil
	}
	if !errors.Is(err, errCorrupt) {
		return nil, err
	}

	s.logger.Error("Corrupt conversation rows", "conversation_id", key.ID, "owner", key.Owner, "error", err)
	err = shared.RetryOnConflict(ctx, s.retry, "quarantine conversation", func() error {
		return s.quarantine(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	CorruptArchived.WithLabelValues(backendSQLite).Inc()
	return []domain.Brief{}, nil
}

func (s *SQLiteStore) quarantine(ctx context.Context, key domain.ConversationKey) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quarantine: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_briefs_corrupted (owner, conversation_id, seq, brief_json, archived_at)
		SELECT owner, conversation_id, seq, brief_json, ? FROM conversation_briefs
		WHERE owner = ? AND conversation_id = ?`,
		time.Now().Unix(), key.Owner, key.ID)
	if err != nil {
		return fmt.Errorf("copy corrupt rows: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM conversation_briefs WHERE owner = ? AND conversation_id = ?`, key.Owner, key.ID)
	if err != nil {
		return fmt.Errorf("delete corrupt rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit quarantine: %w", err)
	}
	return nil
}

func loadBriefRows(ctx context.Context, q queryer, key domain.ConversationKey) ([]domain.Brief, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seq, brief_json FROM conversation_briefs WHERE owner = ? AND conversation_id = ? ORDER BY seq`,
		key.Owner, key.ID)
	if err != nil {
		return nil, fmt.Errorf("query briefs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	briefs := []domain.Brief{}
	var corrupt error
	for rows.Next() {
		var seq int64
		var data string
		if err := rows.Scan(&seq, &data); err != nil {
			return nil, fmt.Errorf("scan brief row: %w", err)
		}
		if corrupt != nil {
			continue
		}
		b, err := decodeBrief([]byte(data))
		if err != nil {
			corrupt = fmt.Errorf("%w: seq %d: %v", errCorrupt, seq, err)
			continue
		}
		briefs = append(briefs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate briefs: %w", err)
	}
	if corrupt != nil {
		return nil, corrupt
	}
	return briefs, nil
}

// CreateAccount stores a new account.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
	INSERT INTO accounts (id, name, email, phone, password_hash, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var phone interface{}
	if account.Phone != "" {
		phone = account.Phone
	}

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.Name, account.Email, phone,
		account.PasswordHash, account.CreatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetAccountByEmail retrieves an account by its normalized email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	query := `
		SELECT id, name, email, phone, password_hash, created_at
		FROM accounts WHERE email = ?`

	row := s.db.QueryRowContext(ctx, query, email)

	var account domain.Account
	var phone sql.NullString
	var createdAt int64

	err := row.Scan(&account.ID, &account.Name, &account.Email, &phone, &account.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account row: %w", err)
	}

	account.Phone = phone.String
	account.CreatedAt = time.Unix(createdAt, 0)
	return &account, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
