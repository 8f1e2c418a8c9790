package workflow

import (
	"time"

	"github.com/google/uuid"

	rbac "regflow/internal/rbac/models"
	"regflow/internal/registration/models"
	id "regflow/pkg/domain"
	dErrors "regflow/pkg/domain-errors"
	"regflow/pkg/platform/strings"
)

// SubStatuses optionally sets the parallel status dimensions alongside a
// transition. Nil fields keep their current value. Approval is never free:
// it follows from the target status, and an explicit value must agree.
type SubStatuses struct {
	Validation *models.ValidationStatus
	Approval   *models.ApprovalStatus
	Audit      *models.AuditStatus
}

func (s SubStatuses) Validate() error {
	if s.Validation != nil && !s.Validation.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown validation status "+string(*s.Validation))
	}
	if s.Approval != nil && !s.Approval.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown approval status "+string(*s.Approval))
	}
	if s.Audit != nil && !s.Audit.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown audit status "+string(*s.Audit))
	}
	return nil
}

var (
	auditRoles      = []rbac.SystemRole{rbac.RoleRegulator, rbac.RoleAdmin}
	validationRoles = []rbac.SystemRole{rbac.RoleChecker, rbac.RoleRegulator, rbac.RoleAdmin}
)

// ApprovalFor is the approval status a registration carries after moving to
// to. Decisions fix it, a submission reopens it as pending, and every other
// move keeps current.
func ApprovalFor(current models.ApprovalStatus, to models.Status) models.ApprovalStatus {
	switch to {
	case models.StatusApproved:
		return models.ApprovalApproved
	case models.StatusRejected:
		return models.ApprovalRejected
	case models.StatusReturnedForEdit:
		return models.ApprovalReturned
	case models.StatusSubmitted:
		return models.ApprovalPending
	}
	return current
}

// CheckApproval rejects an explicit approval status that disagrees with the
// one the move implies.
func (s SubStatuses) CheckApproval(reg *models.Registration, to models.Status) error {
	if s.Approval == nil {
		return nil
	}
	if want := ApprovalFor(reg.ApprovalStatus, to); *s.Approval != want {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"approval status "+string(*s.Approval)+" contradicts a move to "+to.String()+" (implies "+string(want)+")")
	}
	return nil
}

// Unpermitted names the first requested dimension none of roles may set, or
// "" when all are allowed. Audit belongs to regulators, validation to
// reviewers.
func (s SubStatuses) Unpermitted(roles []rbac.SystemRole) string {
	if s.Audit != nil && !strings.Intersects(roles, auditRoles) {
		return "audit_status"
	}
	if s.Validation != nil && !strings.Intersects(roles, validationRoles) {
		return "validation_status"
	}
	return ""
}

// Apply returns a copy of reg moved to status to, with milestone fields set,
// and the log row recording the move. It does not check legality or roles
// and does not touch Version; callers run CheckApproval and Unpermitted
// first. An explicit Approval is ignored in favour of ApprovalFor.
func Apply(reg *models.Registration, to models.Status, sub SubStatuses, actor id.UserID, now time.Time, remarks string) (*models.Registration, *models.StatusLog) {
	next := reg.Clone()
	from := next.Status
	next.Status = to
	next.UpdatedAt = now
	next.UpdatedBy = &actor

	switch to {
	case models.StatusSubmitted:
		next.SubmittedAt = &now
		next.SubmittedBy = &actor
	case models.StatusApproved:
		next.ApprovedAt = &now
	}
	next.ApprovalStatus = ApprovalFor(next.ApprovalStatus, to)

	if sub.Validation != nil {
		next.ValidationStatus = *sub.Validation
	}
	if sub.Audit != nil {
		next.AuditStatus = *sub.Audit
		if *sub.Audit == models.AuditAudited {
			next.AuditedAt = &now
		}
	}

	log := &models.StatusLog{
		ID:               id.StatusLogID(uuid.New()),
		RegistrationID:   next.ID,
		FromStatus:       from,
		Status:           to,
		ValidationStatus: next.ValidationStatus,
		ApprovalStatus:   next.ApprovalStatus,
		AuditStatus:      next.AuditStatus,
		PerformedBy:      actor,
		ActionAt:         now,
		Remarks:          remarks,
	}
	return next, log
}

// InitialLog is the history row written when a registration is created.
func InitialLog(reg *models.Registration, remarks string) *models.StatusLog {
	return &models.StatusLog{
		ID:               id.StatusLogID(uuid.New()),
		RegistrationID:   reg.ID,
		Status:           reg.Status,
		ValidationStatus: reg.ValidationStatus,
		ApprovalStatus:   reg.ApprovalStatus,
		AuditStatus:      reg.AuditStatus,
		PerformedBy:      reg.CreatedBy,
		ActionAt:         reg.CreatedAt,
		Remarks:          remarks,
	}
}
