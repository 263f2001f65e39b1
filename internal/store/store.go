// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/brieflab/internal/domain"
)

var (
	// ErrStoreWrite wraps any failure on the append path. The previously
	// persisted conversation is left intact when it is returned.
	ErrStoreWrite = errors.New("conversation store write failed")

	// ErrAccountExists is returned when an email is already registered.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound is returned when no account matches a lookup.
	ErrAccountNotFound = errors.New("account not found")
)

// ConversationStore is a durable, append-only log of briefs per conversation.
// Implementations must serialize appends to the same conversation and keep
// unrelated conversations independent.
type ConversationStore interface {
	// Get returns the briefs of a conversation in insertion order.
	// Unknown conversations yield an empty slice, not an error.
	// Corrupt data is archived and reported as empty history.
	Get(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error)

	// Append adds a brief to the end of a conversation, creating it if needed.
	// The brief is durable when Append returns nil.
	Append(ctx context.Context, key domain.ConversationKey, brief domain.Brief) error

	// Clear removes a conversation. Clearing an unknown conversation is a no-op.
	Clear(ctx context.Context, key domain.ConversationKey) error

	// List returns the distinct conversation ids stored for owner.
	List(ctx context.Context, owner string) ([]string, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}

// AccountRepository persists registered accounts.
type AccountRepository interface {
	// CreateAccount stores a new account. Returns ErrAccountExists on a duplicate email.
	CreateAccount(ctx context.Context, account *domain.Account) error

	// GetAccountByEmail returns ErrAccountNotFound when no account matches.
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
