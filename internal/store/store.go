package store

import (
	"context"
	"fmt"
	"time"

	"allocation-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
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

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// appendAudit writes one row of the append-only audit log. It runs on
// whatever execer the caller is in, so transition audits commit atomically
// with the transition itself.
func appendAudit(ctx context.Context, q sqlx.ExtContext, entityType, entityID, action, actor, detail string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO audit_events (entity_type, entity_id, action, actor, detail)
		 VALUES ($1, $2, $3, $4, $5)`,
		entityType, entityID, action, actor, detail)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// GetAuditTrail returns the audit log for one entity, oldest first.
func (s *Store) GetAuditTrail(ctx context.Context, entityType, entityID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := s.db.SelectContext(ctx, &events,
		`SELECT * FROM audit_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at, id`,
		entityType, entityID)
	return events, err
}

// IsEventProcessed checks if an inbound event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an inbound event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
