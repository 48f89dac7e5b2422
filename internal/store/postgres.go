package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ent0n29/healthlog/internal/records"
)

// PostgresStore keeps one row per user with each record list in a JSONB column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var kindColumns = map[records.Kind]string{
	records.KindMedication: "medications",
	records.KindFood:       "foods",
	records.KindMood:       "moods",
	records.KindPain:       "pains",
	records.KindBowel:      "bowel",
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_logs (
			user_id TEXT PRIMARY KEY,
			medications JSONB NOT NULL DEFAULT '[]'::jsonb,
			foods JSONB NOT NULL DEFAULT '[]'::jsonb,
			moods JSONB NOT NULL DEFAULT '[]'::jsonb,
			pains JSONB NOT NULL DEFAULT '[]'::jsonb,
			bowel JSONB NOT NULL DEFAULT '[]'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const selectRecordsSQL = `SELECT medications, foods, moods, pains, bowel FROM user_logs WHERE user_id=$1`

func (s *PostgresStore) LoadRecords(ctx context.Context, userID string) (records.Collection, error) {
	c, err := scanCollection(s.pool.QueryRow(ctx, selectRecordsSQL, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return records.Collection{}, nil
	}
	if err != nil {
		return records.Collection{}, fmt.Errorf("load records: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SaveRecords(ctx context.Context, userID string, c records.Collection) error {
	if err := upsertCollection(ctx, s.pool, userID, c); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	return nil
}

// UpdateRecords locks the user's row for the duration of fn so concurrent
// appends wait instead of being overwritten.
func (s *PostgresStore) UpdateRecords(ctx context.Context, userID string, fn func(*records.Collection) bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanCollection(tx.QueryRow(ctx, selectRecordsSQL+` FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lock records: %w", err)
	}
	if !fn(&c) {
		return nil
	}
	if err := upsertCollection(ctx, tx, userID, c); err != nil {
		return fmt.Errorf("update records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanCollection(row pgx.Row) (records.Collection, error) {
	var raw [5][]byte
	if err := row.Scan(&raw[0], &raw[1], &raw[2], &raw[3], &raw[4]); err != nil {
		return records.Collection{}, err
	}

	var c records.Collection
	for i, k := range records.Kinds {
		if len(raw[i]) == 0 {
			continue
		}
		if err := json.Unmarshal(raw[i], c.List(k)); err != nil {
			return records.Collection{}, fmt.Errorf("decode %s: %w", kindColumns[k], err)
		}
	}
	return c, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertCollection(ctx context.Context, db execer, userID string, c records.Collection) error {
	var cols [5]string
	for i, k := range records.Kinds {
		list := *c.List(k)
		if list == nil {
			list = []records.Record{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kindColumns[k], err)
		}
		cols[i] = string(b)
	}

	_, err := db.Exec(ctx,
		`INSERT INTO user_logs (user_id, medications, foods, moods, pains, bowel, updated_at)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			medications=EXCLUDED.medications,
			foods=EXCLUDED.foods,
			moods=EXCLUDED.moods,
			pains=EXCLUDED.pains,
			bowel=EXCLUDED.bowel,
			updated_at=EXCLUDED.updated_at`,
		userID, cols[0], cols[1], cols[2], cols[3], cols[4],
	)
	return err
}

func (s *PostgresStore) AppendRecord(ctx context.Context, userID string, r records.Record) error {
	col, ok := kindColumns[r.Kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	b, err := json.Marshal([]records.Record{r})
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	// col comes from kindColumns, never from input.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO user_logs (user_id, `+col+`, updated_at) VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			`+col+`=user_logs.`+col+` || EXCLUDED.`+col+`,
			updated_at=EXCLUDED.updated_at`,
		userID, string(b),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM user_logs ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 64)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM user_logs WHERE user_id=$1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
