package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"regflow/internal/notification/models"
	"regflow/internal/platform/postgres"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const columns = `id, recipient_id, registration_id, triggered_by, event, channel, subject, body, tokens, created_at, read_at`

func (s *Postgres) Save(ctx context.Context, n *models.Notification) error {
	tokens, err := json.Marshal(n.Tokens)
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	var regID, triggeredBy uuid.NullUUID
	if n.RegistrationID != nil {
		regID = uuid.NullUUID{UUID: uuid.UUID(*n.RegistrationID), Valid: true}
	}
	if n.TriggeredBy != nil {
		triggeredBy = uuid.NullUUID{UUID: uuid.UUID(*n.TriggeredBy), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(n.ID), uuid.UUID(n.RecipientID), regID, triggeredBy, n.Event, string(n.Channel),
		n.Subject, n.Body, tokens, n.CreatedAt, nullTime(n.ReadAt))
	return postgres.MapError(err, "insert notification")
}

func (s *Postgres) ListForRecipient(ctx context.Context, recipient id.UserID, f models.ListFilter) ([]*models.Notification, error) {
	query := `SELECT ` + columns + ` FROM notifications WHERE recipient_id = $1`
	if f.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(recipient), f.EffectiveLimit())
	if err != nil {
		return nil, postgres.MapError(err, "list notifications")
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var (
			n                  models.Notification
			nid, rid           uuid.UUID
			regID, triggeredBy uuid.NullUUID
			channel            string
			tokens             []byte
			readAt             sql.NullTime
		)
		if err := rows.Scan(&nid, &rid, &regID, &triggeredBy, &n.Event, &channel, &n.Subject, &n.Body, &tokens, &n.CreatedAt, &readAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ID = id.NotificationID(nid)
		n.RecipientID = id.UserID(rid)
		n.Channel = models.Channel(channel)
		if regID.Valid {
			v := id.RegistrationID(regID.UUID)
			n.RegistrationID = &v
		}
		if triggeredBy.Valid {
			v := id.UserID(triggeredBy.UUID)
			n.TriggeredBy = &v
		}
		if len(tokens) > 0 {
			if err := json.Unmarshal(tokens, &n.Tokens); err != nil {
				return nil, fmt.Errorf("decode tokens: %w", err)
			}
		}
		if readAt.Valid {
			t := readAt.Time.UTC()
			n.ReadAt = &t
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

func (s *Postgres) MarkRead(ctx context.Context, recipient id.UserID, nid id.NotificationID, readAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
	`, uuid.UUID(nid), uuid.UUID(recipient), readAt)
	if err != nil {
		return postgres.MapError(err, "mark notification read")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %s: %w", nid, sentinel.ErrNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
