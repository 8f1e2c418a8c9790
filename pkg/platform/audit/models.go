package audit

import (
	"context"
	"time"

	id "regflow/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: workflow
	// transitions and permission changes. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers access decisions worth alerting on.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// UserID is the user the event is about; ActorID is who performed it.
	UserID       id.UserID `json:"user_id"`
	ActorID      string    `json:"actor_id,omitempty"`
	Subject      string    `json:"subject,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Decision     string    `json:"decision,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
}

type AuditEvent string

const (
	// Registration events
	EventRegistrationCreated      AuditEvent = "registration_created"
	EventRegistrationUpdated      AuditEvent = "registration_updated"
	EventRegistrationTransitioned AuditEvent = "registration_transitioned"
	EventTransitionDenied         AuditEvent = "registration_transition_denied"

	// RBAC events
	EventRoleCreated            AuditEvent = "role_created"
	EventRolePermissionsChanged AuditEvent = "role_permissions_changed"
	EventUserCreated            AuditEvent = "user_created"
	EventRoleAssigned           AuditEvent = "role_assigned"
	EventRoleRemoved            AuditEvent = "role_removed"
	EventOverrideSet            AuditEvent = "permission_override_set"
	EventOverrideCleared        AuditEvent = "permission_override_cleared"
	EventActivationChanged      AuditEvent = "activation_changed"
	EventAccessDenied           AuditEvent = "access_denied"

	// Session events
	EventTokenIssued AuditEvent = "token_issued"
	EventAuthFailed  AuditEvent = "auth_failed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventRegistrationCreated:      CategoryCompliance,
	EventRegistrationUpdated:      CategoryCompliance,
	EventRegistrationTransitioned: CategoryCompliance,
	EventRoleCreated:              CategoryCompliance,
	EventRolePermissionsChanged:   CategoryCompliance,
	EventUserCreated:              CategoryCompliance,
	EventRoleAssigned:             CategoryCompliance,
	EventRoleRemoved:              CategoryCompliance,
	EventOverrideSet:              CategoryCompliance,
	EventOverrideCleared:          CategoryCompliance,
	EventActivationChanged:        CategoryCompliance,

	EventTransitionDenied: CategorySecurity,
	EventAccessDenied:     CategorySecurity,
	EventAuthFailed:       CategorySecurity,

	EventTokenIssued: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]Event, error)
}

// Emitter is what domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
