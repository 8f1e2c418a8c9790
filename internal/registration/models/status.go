package models

import (
	dErrors "regflow/pkg/domain-errors"
)

// Status is the workflow position of a registration.
type Status string

const (
	StatusDraft           Status = "Draft"
	StatusSubmitted       Status = "Submitted"
	StatusUnderReview     Status = "UnderReview"
	StatusApproved        Status = "Approved"
	StatusRejected        Status = "Rejected"
	StatusReturnedForEdit Status = "ReturnedForEdit"
	StatusArchived        Status = "Archived"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusRejected,
	StatusReturnedForEdit,
	StatusArchived,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown registration status "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved,
		StatusRejected, StatusReturnedForEdit, StatusArchived:
		return true
	}
	return false
}

// IsTerminal reports statuses with no onward transition except archiving.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusArchived
}

// Editable reports whether institution details may change in this status.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusReturnedForEdit
}

func (s Status) String() string { return string(s) }

type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

func (v ValidationStatus) IsValid() bool {
	return v == ValidationPending || v == ValidationValid || v == ValidationInvalid
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalReturned ApprovalStatus = "returned"
)

func (a ApprovalStatus) IsValid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalReturned:
		return true
	}
	return false
}

type AuditStatus string

const (
	AuditNotAudited AuditStatus = "not_audited"
	AuditAudited    AuditStatus = "audited"
	AuditFlagged    AuditStatus = "flagged"
)

func (a AuditStatus) IsValid() bool {
	return a == AuditNotAudited || a == AuditAudited || a == AuditFlagged
}
