// Package models defines the database model types for the audit log service.
// Each type corresponds to a database table. Models are pure data types —
// query logic belongs in the repositories layer.
package models

import "time"

// ServiceToken represents a bearer token issued to a collaborating subsystem
// (grievance service, project service, ...) so it can write audit records.
type ServiceToken struct {
	ID             string
	OrganizationID string
	Name           string     // Friendly name (e.g., "grievance-service")
	TokenHash      string     // Bcrypt hash of the full token
	TokenPrefix    string     // First 12 chars, stored plaintext for indexed lookup
	Scopes         []string   // JSONB array: ["audit:write"]
	ExpiresAt      *time.Time // Optional expiration
	LastUsedAt     *time.Time
	// ExpiryNotificationSentAt records when the expiry warning email went out,
	// so the warning is sent exactly once even across restarts.
	ExpiryNotificationSentAt *time.Time
	CreatedAt                time.Time
}
