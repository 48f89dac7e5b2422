package store

import (
	"context"
	"errors"
	"strings"

	"github.com/ent0n29/healthlog/internal/records"
)

var ErrUnknownKind = errors.New("unknown record kind")

// Store is the per-user record source and write-back target.
type Store interface {
	// LoadRecords returns the user's lists; an unknown user yields an empty Collection.
	LoadRecords(ctx context.Context, userID string) (records.Collection, error)
	SaveRecords(ctx context.Context, userID string, c records.Collection) error
	// UpdateRecords applies fn to the user's current lists and writes the result
	// back atomically when fn reports a change. An unknown user is a no-op.
	UpdateRecords(ctx context.Context, userID string, fn func(*records.Collection) bool) error
	AppendRecord(ctx context.Context, userID string, r records.Record) error
	ListUserIDs(ctx context.Context) ([]string, error)
	DeleteUser(ctx context.Context, userID string) error
	Close() error
}

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
