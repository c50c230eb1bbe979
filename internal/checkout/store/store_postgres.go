package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists snapshots in PostgreSQL. Schema:
//
//	CREATE TABLE checkout_snapshots (
//	    session_key TEXT PRIMARY KEY,
//	    payload     BYTEA NOT NULL,
//	    saved_at    TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db    *sql.DB
	codec codec
	ttl   time.Duration
	clock Clock
}

type PostgresOption func(*PostgresStore)

func WithPostgresClock(clock Clock) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, cipher *Cipher, ttl time.Duration, opts ...PostgresOption) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("db handle is required")
	}
	s := &PostgresStore{
		db:    db,
		codec: codec{cipher: cipher},
		ttl:   ttl,
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *PostgresStore) Save(ctx context.Context, key string, snap *Snapshot) error {
	payload, err := s.codec.encode(snap)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO checkout_snapshots (session_key, payload, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			saved_at = EXCLUDED.saved_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, payload, snap.SavedAt); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	var (
		payload []byte
		savedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, saved_at FROM checkout_snapshots WHERE session_key = $1`, key,
	).Scan(&payload, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if s.clock().Sub(savedAt) > s.ttl {
		if err := s.Clear(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.codec.decode(payload)
}

func (s *PostgresStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkout_snapshots WHERE session_key = $1`, key,
	); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}
