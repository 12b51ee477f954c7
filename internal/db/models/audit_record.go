// Package models - audit_record.go defines the AuditRecord model: one immutable
// fact of the form "actor X performed action A on entity E at time T, in
// organization O". Records are append-only; the only write paths are insert and
// bulk delete by age (retention sweep).
package models

import "time"

// AuditAction is a closed-enum code naming what happened.
type AuditAction string

// The full set of recognized audit actions. ActionOther is the catch-all for
// events that do not map to a specific code.
const (
	ActionOrganizationCreated AuditAction = "ORGANIZATION_CREATED"
	ActionOrganizationUpdated AuditAction = "ORGANIZATION_UPDATED"
	ActionOrganizationDeleted AuditAction = "ORGANIZATION_DELETED"
	ActionUserCreated         AuditAction = "USER_CREATED"
	ActionUserUpdated         AuditAction = "USER_UPDATED"
	ActionUserDeleted         AuditAction = "USER_DELETED"
	ActionUserLogin           AuditAction = "USER_LOGIN"
	ActionUserLogout          AuditAction = "USER_LOGOUT"
	ActionProjectCreated      AuditAction = "PROJECT_CREATED"
	ActionProjectUpdated      AuditAction = "PROJECT_UPDATED"
	ActionProjectDeleted      AuditAction = "PROJECT_DELETED"
	ActionRoleCreated         AuditAction = "ROLE_CREATED"
	ActionRoleUpdated         AuditAction = "ROLE_UPDATED"
	ActionRoleDeleted         AuditAction = "ROLE_DELETED"
	ActionRoleAssigned        AuditAction = "ROLE_ASSIGNED"
	ActionGrievanceCreated    AuditAction = "GRIEVANCE_CREATED"
	ActionGrievanceUpdated    AuditAction = "GRIEVANCE_UPDATED"
	ActionGrievanceResolved   AuditAction = "GRIEVANCE_RESOLVED"
	ActionGrievanceDeleted    AuditAction = "GRIEVANCE_DELETED"
	ActionDepartmentCreated   AuditAction = "DEPARTMENT_CREATED"
	ActionDepartmentUpdated   AuditAction = "DEPARTMENT_UPDATED"
	ActionDepartmentDeleted   AuditAction = "DEPARTMENT_DELETED"
	ActionTaskCreated         AuditAction = "TASK_CREATED"
	ActionTaskUpdated         AuditAction = "TASK_UPDATED"
	ActionTaskCompleted       AuditAction = "TASK_COMPLETED"
	ActionTaskDeleted         AuditAction = "TASK_DELETED"
	ActionBoardCreated        AuditAction = "BOARD_CREATED"
	ActionBoardUpdated        AuditAction = "BOARD_UPDATED"
	ActionBoardDeleted        AuditAction = "BOARD_DELETED"
	ActionOther               AuditAction = "OTHER"
)

// validActions is the membership set for IsValidAction.
var validActions = map[AuditAction]bool{
	ActionOrganizationCreated: true,
	ActionOrganizationUpdated: true,
	ActionOrganizationDeleted: true,
	ActionUserCreated:         true,
	ActionUserUpdated:         true,
	ActionUserDeleted:         true,
	ActionUserLogin:           true,
	ActionUserLogout:          true,
	ActionProjectCreated:      true,
	ActionProjectUpdated:      true,
	ActionProjectDeleted:      true,
	ActionRoleCreated:         true,
	ActionRoleUpdated:         true,
	ActionRoleDeleted:         true,
	ActionRoleAssigned:        true,
	ActionGrievanceCreated:    true,
	ActionGrievanceUpdated:    true,
	ActionGrievanceResolved:   true,
	ActionGrievanceDeleted:    true,
	ActionDepartmentCreated:   true,
	ActionDepartmentUpdated:   true,
	ActionDepartmentDeleted:   true,
	ActionTaskCreated:         true,
	ActionTaskUpdated:         true,
	ActionTaskCompleted:       true,
	ActionTaskDeleted:         true,
	ActionBoardCreated:        true,
	ActionBoardUpdated:        true,
	ActionBoardDeleted:        true,
	ActionOther:               true,
}

// IsValidAction reports whether s is a member of the closed action enum.
func IsValidAction(s string) bool {
	return validActions[AuditAction(s)]
}

// EntityType is the closed-enum category of the object an action affected.
type EntityType string

// Recognized entity types.
const (
	EntityOrganization EntityType = "Organization"
	EntityUser         EntityType = "User"
	EntityProject      EntityType = "Project"
	EntityRole         EntityType = "Role"
	EntityGrievance    EntityType = "Grievance"
	EntityDepartment   EntityType = "Department"
	EntityTask         EntityType = "Task"
	EntityBoard        EntityType = "Board"
	EntityOther        EntityType = "Other"
)

var validEntityTypes = map[EntityType]bool{
	EntityOrganization: true,
	EntityUser:         true,
	EntityProject:      true,
	EntityRole:         true,
	EntityGrievance:    true,
	EntityDepartment:   true,
	EntityTask:         true,
	EntityBoard:        true,
	EntityOther:        true,
}

// IsValidEntityType reports whether s is a member of the closed entity-type enum.
func IsValidEntityType(s string) bool {
	return validEntityTypes[EntityType(s)]
}

// AuditRecord represents one audit log entry. Immutable after creation.
type AuditRecord struct {
	ID             string                 `json:"id"`
	Action         AuditAction            `json:"action"`
	EntityType     EntityType             `json:"entityType"`
	EntityID       *string                `json:"entityId,omitempty"`   // No referential integrity; target may be deleted later
	EntityName     *string                `json:"entityName,omitempty"` // Denormalized label captured at write time
	Description    string                 `json:"description"`
	PerformedBy    *string                `json:"performedBy,omitempty"` // Nil for system-initiated actions
	OrganizationID string                 `json:"organizationId"`
	IPAddress      *string                `json:"ipAddress,omitempty"`
	UserAgent      *string                `json:"userAgent,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"` // JSONB: shape varies by action
	CreatedAt      time.Time              `json:"createdAt"`

	// Actor is the denormalized display identity of the acting user, joined
	// at read time. Nil when PerformedBy is nil or the user was deleted;
	// callers render "system"/"unknown" in that case.
	Actor *ActorIdentity `json:"actor,omitempty"`
}

// ActorIdentity is the minimal display snapshot of an acting user.
type ActorIdentity struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}
