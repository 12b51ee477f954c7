// Package models - organization.go defines the Organization model representing a tenant.
// Every audit record and every query belongs to exactly one organization.
package models

import "time"

// Organization represents a tenant in the system
type Organization struct {
	ID          string
	Name        string // URL-safe name
	DisplayName string // Human-readable display name
	Features    []string // Entitled feature flags, e.g. ["audit-log"]
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasFeature reports whether the organization is entitled to the named feature.
func (o *Organization) HasFeature(feature string) bool {
	for _, f := range o.Features {
		if f == feature {
			return true
		}
	}
	return false
}
