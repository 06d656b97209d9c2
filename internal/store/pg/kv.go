// Package pg stores persisted client sessions in Postgres.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bloodlink.org/internal/storage"
)

// KV implements storage.Storage on the client_storage table.
type KV struct {
	db        *sql.DB
	namespace string
}

var _ storage.Storage = (*KV)(nil)

// Open connects with the pgx driver. The schema comes from `migrate up`.
func Open(dsn, namespace string) (*KV, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// A CLI holds at most a couple of connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, namespace), nil
}

// New wraps an existing handle.
func New(db *sql.DB, namespace string) *KV {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "default"
	}
	return &KV{db: db, namespace: namespace}
}

func (s *KV) Close() error { return s.db.Close() }

func (s *KV) DB() *sql.DB { return s.db }

// Ping checks connectivity.
func (s *KV) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *KV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`select value from client_storage where namespace=$1 and key=$2`,
		s.namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *KV) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into client_storage(namespace, key, value, updated_at)
		values ($1, $2, $3, now())
		on conflict (namespace, key) do update
		set value = excluded.value, updated_at = excluded.updated_at
	`, s.namespace, key, value)
	return err
}

func (s *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`delete from client_storage where namespace=$1 and key=$2`,
			s.namespace, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}
