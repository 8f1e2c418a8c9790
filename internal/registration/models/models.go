package models

import (
	"strings"
	"time"

	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
)

const (
	maxInstitutionName = 256
	maxShortField      = 128
)

// Institution is the applicant snapshot captured on the registration.
type Institution struct {
	Name              string     `json:"name"`
	LicenseNumber     string     `json:"license_number"`
	Sector            string     `json:"sector"`
	FinancialDomain   string     `json:"financial_domain"`
	LicenseIssueDate  *time.Time `json:"license_issue_date,omitempty"`
	LicenseExpiryDate *time.Time `json:"license_expiry_date,omitempty"`
}

// Normalize trims text fields and truncates dates to UTC midnight.
func (i *Institution) Normalize() {
	i.Name = strings.TrimSpace(i.Name)
	i.LicenseNumber = strings.TrimSpace(i.LicenseNumber)
	i.Sector = strings.TrimSpace(i.Sector)
	i.FinancialDomain = strings.TrimSpace(i.FinancialDomain)
	i.LicenseIssueDate = dateOnly(i.LicenseIssueDate)
	i.LicenseExpiryDate = dateOnly(i.LicenseExpiryDate)
}

func (i *Institution) Validate() error {
	if i.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "institution name is required")
	}
	if len(i.Name) > maxInstitutionName {
		return dErrors.New(dErrors.CodeValidation, "institution name must be 256 characters or less")
	}
	if len(i.LicenseNumber) > maxShortField || len(i.Sector) > maxShortField || len(i.FinancialDomain) > maxShortField {
		return dErrors.New(dErrors.CodeValidation, "license number, sector and financial domain must be 128 characters or less")
	}
	if i.LicenseIssueDate != nil && i.LicenseExpiryDate != nil && !i.LicenseExpiryDate.After(*i.LicenseIssueDate) {
		return dErrors.New(dErrors.CodeValidation, "license expiry date must be after issue date")
	}
	return nil
}

func dateOnly(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// Registration is an institution's application moving through the workflow.
// Status changes only through the workflow service; Version increases by one
// on every persisted change.
type Registration struct {
	ID          id.RegistrationID `json:"id"`
	Institution Institution       `json:"institution"`

	Status           Status           `json:"status"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ApprovalStatus   ApprovalStatus   `json:"approval_status"`
	AuditStatus      AuditStatus      `json:"audit_status"`
	Version          int64            `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	AuditedAt   *time.Time `json:"audited_at,omitempty"`

	CreatedBy   id.UserID  `json:"created_by"`
	UpdatedBy   *id.UserID `json:"updated_by,omitempty"`
	SubmittedBy *id.UserID `json:"submitted_by,omitempty"`
}

// NewRegistration builds a Draft registration at version 1.
func NewRegistration(regID id.RegistrationID, inst Institution, createdBy id.UserID, now time.Time) (*Registration, error) {
	inst.Normalize()
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if createdBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "created_by is required")
	}
	return &Registration{
		ID:               regID,
		Institution:      inst,
		Status:           StatusDraft,
		ValidationStatus: ValidationPending,
		ApprovalStatus:   ApprovalPending,
		AuditStatus:      AuditNotAudited,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        createdBy,
	}, nil
}

// Clone returns a deep copy.
func (r *Registration) Clone() *Registration {
	cp := *r
	cp.Institution.LicenseIssueDate = cloneTime(r.Institution.LicenseIssueDate)
	cp.Institution.LicenseExpiryDate = cloneTime(r.Institution.LicenseExpiryDate)
	cp.SubmittedAt = cloneTime(r.SubmittedAt)
	cp.ApprovedAt = cloneTime(r.ApprovedAt)
	cp.AuditedAt = cloneTime(r.AuditedAt)
	cp.UpdatedBy = cloneUser(r.UpdatedBy)
	cp.SubmittedBy = cloneUser(r.SubmittedBy)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUser(u *id.UserID) *id.UserID {
	if u == nil {
		return nil
	}
	v := *u
	return &v
}

// StatusLog is one applied transition. FromStatus is empty for the row
// written at creation. Rows are never updated or deleted.
type StatusLog struct {
	ID               id.StatusLogID    `json:"id"`
	RegistrationID   id.RegistrationID `json:"registration_id"`
	FromStatus       Status            `json:"from_status,omitempty"`
	Status           Status            `json:"status"`
	ValidationStatus ValidationStatus  `json:"validation_status,omitempty"`
	ApprovalStatus   ApprovalStatus    `json:"approval_status,omitempty"`
	AuditStatus      AuditStatus       `json:"audit_status,omitempty"`
	PerformedBy      id.UserID         `json:"performed_by"`
	ActionAt         time.Time         `json:"action_at"`
	Remarks          string            `json:"remarks,omitempty"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status    Status
	CreatedBy id.UserID
	Limit     int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// EffectiveLimit clamps Limit into [1, MaxListLimit].
func (f Filter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
