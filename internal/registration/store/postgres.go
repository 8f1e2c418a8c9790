package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"regflow/internal/platform/postgres"
	"regflow/internal/registration/models"
	id "regflow/pkg/domain"
	"regflow/pkg/platform/sentinel"
	txcontext "regflow/pkg/platform/tx"
)

// Postgres persists registrations and their append-only status log.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) q(ctx context.Context) queryer {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const registrationColumns = `id, institution_name, license_number, sector, financial_domain,
	license_issue_date, license_expiry_date, status, validation_status, approval_status,
	audit_status, version, created_at, updated_at, submitted_at, approved_at, audited_at,
	created_by, updated_by, submitted_by`

const logColumns = `id, registration_id, from_status, status, validation_status, approval_status,
	audit_status, performed_by, action_at, remarks`

func (s *Postgres) Create(ctx context.Context, reg *models.Registration, initial *models.StatusLog) error {
	return txcontext.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registrations (`+registrationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`,
			uuid.UUID(reg.ID), reg.Institution.Name, reg.Institution.LicenseNumber, reg.Institution.Sector,
			reg.Institution.FinancialDomain, nullTime(reg.Institution.LicenseIssueDate), nullTime(reg.Institution.LicenseExpiryDate),
			string(reg.Status), string(reg.ValidationStatus), string(reg.ApprovalStatus), string(reg.AuditStatus),
			reg.Version, reg.CreatedAt, reg.UpdatedAt, nullTime(reg.SubmittedAt), nullTime(reg.ApprovedAt),
			nullTime(reg.AuditedAt), uuid.UUID(reg.CreatedBy), nullUser(reg.UpdatedBy), nullUser(reg.SubmittedBy),
		)
		if err != nil {
			return postgres.MapError(err, "insert registration")
		}
		return insertLog(ctx, tx, initial)
	})
}

func (s *Postgres) FindByID(ctx context.Context, regID id.RegistrationID) (*models.Registration, error) {
	reg, err := scanRegistration(s.q(ctx).QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, uuid.UUID(regID)))
	if err != nil {
		return nil, postgres.MapError(err, "find registration")
	}
	return reg, nil
}

// List returns matching registrations, newest first.
func (s *Postgres) List(ctx context.Context, f models.Filter) ([]*models.Registration, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if !f.CreatedBy.IsNil() {
		args = append(args, uuid.UUID(f.CreatedBy))
		where = append(where, "created_by = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + registrationColumns + ` FROM registrations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	query += ` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, "list registrations")
	}
	defer rows.Close()
	var out []*models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

// Update persists reg if the row is still at expectedVersion and bumps
// reg.Version.
func (s *Postgres) Update(ctx context.Context, reg *models.Registration, expectedVersion int64) error {
	if err := updateRegistration(ctx, s.q(ctx), reg, expectedVersion); err != nil {
		return err
	}
	reg.Version = expectedVersion + 1
	return nil
}

// Transition updates the registration and appends the log row in one
// transaction. A concurrent writer that committed first makes the version
// check fail with sentinel.ErrStaleVersion.
func (s *Postgres) Transition(ctx context.Context, reg *models.Registration, expectedVersion int64, log *models.StatusLog) error {
	err := txcontext.RunInTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if err := updateRegistration(ctx, tx, reg, expectedVersion); err != nil {
			return err
		}
		return insertLog(ctx, tx, log)
	})
	if err != nil {
		return err
	}
	reg.Version = expectedVersion + 1
	return nil
}

func updateRegistration(ctx context.Context, q queryer, reg *models.Registration, expectedVersion int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE registrations SET
			institution_name = $3, license_number = $4, sector = $5, financial_domain = $6,
			license_issue_date = $7, license_expiry_date = $8, status = $9,
			validation_status = $10, approval_status = $11, audit_status = $12,
			updated_at = $13, submitted_at = $14, approved_at = $15, audited_at = $16,
			updated_by = $17, submitted_by = $18, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		uuid.UUID(reg.ID), expectedVersion, reg.Institution.Name, reg.Institution.LicenseNumber,
		reg.Institution.Sector, reg.Institution.FinancialDomain, nullTime(reg.Institution.LicenseIssueDate),
		nullTime(reg.Institution.LicenseExpiryDate), string(reg.Status), string(reg.ValidationStatus),
		string(reg.ApprovalStatus), string(reg.AuditStatus), reg.UpdatedAt, nullTime(reg.SubmittedAt),
		nullTime(reg.ApprovedAt), nullTime(reg.AuditedAt), nullUser(reg.UpdatedBy), nullUser(reg.SubmittedBy),
	)
	if err != nil {
		return postgres.MapError(err, "update registration")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration: rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, uuid.UUID(reg.ID)).Scan(&exists); err != nil {
		return postgres.MapError(err, "check registration")
	}
	if !exists {
		return fmt.Errorf("registration %s: %w", reg.ID, sentinel.ErrNotFound)
	}
	return fmt.Errorf("registration %s expected version %d: %w", reg.ID, expectedVersion, sentinel.ErrStaleVersion)
}

func insertLog(ctx context.Context, q queryer, l *models.StatusLog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO registration_status_logs (`+logColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(l.ID), uuid.UUID(l.RegistrationID), string(l.FromStatus), string(l.Status),
		string(l.ValidationStatus), string(l.ApprovalStatus), string(l.AuditStatus),
		uuid.UUID(l.PerformedBy), l.ActionAt, l.Remarks,
	)
	return postgres.MapError(err, "insert status log")
}

// History returns the status log oldest first.
func (s *Postgres) History(ctx context.Context, regID id.RegistrationID) ([]*models.StatusLog, error) {
	var exists bool
	if err := s.q(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM registrations WHERE id = $1)`, uuid.UUID(regID)).Scan(&exists); err != nil {
		return nil, postgres.MapError(err, "check registration")
	}
	if !exists {
		return nil, fmt.Errorf("registration %s: %w", regID, sentinel.ErrNotFound)
	}
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT `+logColumns+` FROM registration_status_logs WHERE registration_id = $1 ORDER BY action_at, id`,
		uuid.UUID(regID))
	if err != nil {
		return nil, postgres.MapError(err, "list status logs")
	}
	defer rows.Close()
	var out []*models.StatusLog
	for rows.Next() {
		var (
			l                       models.StatusLog
			lid, rid, by            uuid.UUID
			from, st, val, appr, au string
		)
		if err := rows.Scan(&lid, &rid, &from, &st, &val, &appr, &au, &by, &l.ActionAt, &l.Remarks); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		l.ID = id.StatusLogID(lid)
		l.RegistrationID = id.RegistrationID(rid)
		l.PerformedBy = id.UserID(by)
		l.FromStatus = models.Status(from)
		l.Status = models.Status(st)
		l.ValidationStatus = models.ValidationStatus(val)
		l.ApprovalStatus = models.ApprovalStatus(appr)
		l.AuditStatus = models.AuditStatus(au)
		l.ActionAt = l.ActionAt.UTC()
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status logs: %w", err)
	}
	return out, nil
}

func scanRegistration(row interface{ Scan(...any) error }) (*models.Registration, error) {
	var (
		r                                     models.Registration
		rid, createdBy                        uuid.UUID
		updatedBy, submittedBy                uuid.NullUUID
		issue, expiry, submitted, approved    sql.NullTime
		audited                               sql.NullTime
		status, validation, approval, auditSt string
	)
	err := row.Scan(
		&rid, &r.Institution.Name, &r.Institution.LicenseNumber, &r.Institution.Sector, &r.Institution.FinancialDomain,
		&issue, &expiry, &status, &validation, &approval,
		&auditSt, &r.Version, &r.CreatedAt, &r.UpdatedAt, &submitted, &approved, &audited,
		&createdBy, &updatedBy, &submittedBy,
	)
	if err != nil {
		return nil, err
	}
	r.ID = id.RegistrationID(rid)
	r.CreatedBy = id.UserID(createdBy)
	r.Status = models.Status(status)
	r.ValidationStatus = models.ValidationStatus(validation)
	r.ApprovalStatus = models.ApprovalStatus(approval)
	r.AuditStatus = models.AuditStatus(auditSt)
	r.Institution.LicenseIssueDate = timePtr(issue)
	r.Institution.LicenseExpiryDate = timePtr(expiry)
	r.SubmittedAt = timePtr(submitted)
	r.ApprovedAt = timePtr(approved)
	r.AuditedAt = timePtr(audited)
	r.UpdatedBy = userPtr(updatedBy)
	r.SubmittedBy = userPtr(submittedBy)
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullUser(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func userPtr(u uuid.NullUUID) *id.UserID {
	if !u.Valid {
		return nil
	}
	v := id.UserID(u.UUID)
	return &v
}
