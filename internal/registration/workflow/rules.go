// Package workflow holds the registration transition table. The table is an
// explicit switch: adding a transition means editing both CanTransition and
// AllowedRolesFor.
package workflow

import (
	rbac "regflow/internal/rbac/models"
	"regflow/internal/registration/models"
)

type edge struct {
	from, to models.Status
}

// CanTransition reports whether from → to is a legal move. Every status but
// Archived itself may be archived; everything not listed is illegal,
// including self transitions.
func CanTransition(from, to models.Status) bool {
	if to == models.StatusArchived {
		return from.IsValid() && from != models.StatusArchived
	}
	switch (edge{from, to}) {
	case edge{models.StatusDraft, models.StatusSubmitted},
		edge{models.StatusSubmitted, models.StatusUnderReview},
		edge{models.StatusUnderReview, models.StatusApproved},
		edge{models.StatusUnderReview, models.StatusRejected},
		edge{models.StatusUnderReview, models.StatusReturnedForEdit},
		edge{models.StatusReturnedForEdit, models.StatusDraft}:
		return true
	}
	return false
}

// AllowedRolesFor returns the roles that may perform from → to, or nil when
// the move is illegal. The returned slice is owned by the caller.
func AllowedRolesFor(from, to models.Status) []rbac.SystemRole {
	if to == models.StatusArchived {
		if !CanTransition(from, to) {
			return nil
		}
		return []rbac.SystemRole{rbac.RoleAdmin}
	}
	switch (edge{from, to}) {
	case edge{models.StatusDraft, models.StatusSubmitted}:
		return []rbac.SystemRole{rbac.RoleMaker, rbac.RoleChecker, rbac.RoleAdmin}
	case edge{models.StatusSubmitted, models.StatusUnderReview}:
		return []rbac.SystemRole{rbac.RoleChecker, rbac.RoleAdmin}
	case edge{models.StatusUnderReview, models.StatusApproved}:
		return []rbac.SystemRole{rbac.RoleRegulator, rbac.RoleAdmin}
	case edge{models.StatusUnderReview, models.StatusRejected}:
		return []rbac.SystemRole{rbac.RoleRegulator, rbac.RoleAdmin}
	case edge{models.StatusUnderReview, models.StatusReturnedForEdit}:
		return []rbac.SystemRole{rbac.RoleChecker, rbac.RoleRegulator, rbac.RoleAdmin}
	case edge{models.StatusReturnedForEdit, models.StatusDraft}:
		return []rbac.SystemRole{rbac.RoleMaker, rbac.RoleChecker, rbac.RoleAdmin}
	}
	return nil
}

// AllowedTargets lists the legal targets from a status in workflow order.
func AllowedTargets(from models.Status) []models.Status {
	var out []models.Status
	for _, to := range models.Statuses {
		if CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

// Event names the notification fired when a registration reaches a status.
type Event string

const (
	EventRegistrationSubmitted       Event = "RegistrationSubmitted"
	EventRegistrationUnderReview     Event = "RegistrationUnderReview"
	EventRegistrationApproved        Event = "RegistrationApproved"
	EventRegistrationRejected        Event = "RegistrationRejected"
	EventRegistrationReturnedForEdit Event = "RegistrationReturnedForEdit"
	EventRegistrationReopened        Event = "RegistrationReopened"
	EventRegistrationArchived        Event = "RegistrationArchived"
)

func EventFor(to models.Status) Event {
	switch to {
	case models.StatusSubmitted:
		return EventRegistrationSubmitted
	case models.StatusUnderReview:
		return EventRegistrationUnderReview
	case models.StatusApproved:
		return EventRegistrationApproved
	case models.StatusRejected:
		return EventRegistrationRejected
	case models.StatusReturnedForEdit:
		return EventRegistrationReturnedForEdit
	case models.StatusDraft:
		return EventRegistrationReopened
	case models.StatusArchived:
		return EventRegistrationArchived
	}
	return ""
}
