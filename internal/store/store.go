// Package store persists orders, items, payments and audit events in
// Postgres. At startup it probes the schema once: deployments that predate
// the chat_id column get a reduced column set instead of per-call errors.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db        *sqlx.DB
	hasChatID bool
}

// NewStore connects to the database and probes schema capabilities.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.probeSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to probe schema: %w", err)
	}

	return s, nil
}

// probeSchema detects optional columns so every later call picks the right
// code path up front.
func (s *Store) probeSchema(ctx context.Context) error {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'orders' AND column_name = 'chat_id'
		)`)
	if err != nil {
		return err
	}
	s.hasChatID = exists
	return nil
}

// HasChatIDColumn reports whether the orders table carries chat_id.
func (s *Store) HasChatIDColumn() bool {
	return s.hasChatID
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// FindUserIDByPhone resolves an account by normalized phone. Returns nil
// when no account matches.
func (s *Store) FindUserIDByPhone(ctx context.Context, phone string) (*int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, "SELECT id FROM users WHERE phone = $1", phone)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// GetUserEmail returns the email of an account, empty if unset.
func (s *Store) GetUserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	err := s.db.GetContext(ctx, &email, "SELECT COALESCE(email, '') FROM users WHERE id = $1", userID)
	if isNoRows(err) {
		return "", nil
	}
	return email, err
}
