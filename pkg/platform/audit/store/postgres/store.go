package postgres

import (
	"context"
	"database/sql"
	"fmt"

	id "regflow/pkg/domain"
	audit "regflow/pkg/platform/audit"
	txcontext "regflow/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store on the audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer joins the caller's transaction when one is in the context so an
// audit row commits or rolls back with the change it describes.
func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()

	var userID *uuid.UUID
	if !event.UserID.IsNil() {
		uid := uuid.UUID(event.UserID)
		userID = &uid
	}

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, user_id, actor_id, subject, action,
			resource_type, resource_id, decision, reason, request_id, client_ip
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		userID,
		event.ActorID,
		event.Subject,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT category, timestamp, user_id, actor_id, subject, action,
		   resource_type, resource_id, decision, reason, request_id, client_ip
	FROM audit_events
`

func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`WHERE user_id = $1 ORDER BY timestamp ASC`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) ListByResource(ctx context.Context, resourceType, resourceID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+`WHERE resource_type = $1 AND resource_id = $2 ORDER BY timestamp ASC`,
		resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			category       string
			event          audit.Event
			userIDNullable *uuid.UUID
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&userIDNullable,
			&event.ActorID,
			&event.Subject,
			&event.Action,
			&event.ResourceType,
			&event.ResourceID,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if userIDNullable != nil {
			event.UserID = id.UserID(*userIDNullable)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
