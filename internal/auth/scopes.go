// Package auth - scopes.go defines permission scope constants for audit resources
// and provides HasScope, HasAnyScope, and HasAllScopes helper functions for scope checking.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Audit log scopes
	ScopeAuditRead  Scope = "audit:read"  // Query and export audit records
	ScopeAuditWrite Scope = "audit:write" // Append audit records (service tokens)
	ScopeAuditAdmin Scope = "audit:admin" // Retention sweeps and token management

	// Organization management scopes
	ScopeOrganizationsRead  Scope = "organizations:read"
	ScopeOrganizationsWrite Scope = "organizations:write"

	// User management scopes
	ScopeUsersRead Scope = "users:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeAuditRead,
		ScopeAuditWrite,
		ScopeAuditAdmin,
		ScopeOrganizationsRead,
		ScopeOrganizationsWrite,
		ScopeUsersRead,
		ScopeAdmin,
	}
}

// ValidScopes returns a map of valid scope strings
func ValidScopes() map[string]bool {
	validScopes := make(map[string]bool)
	for _, scope := range AllScopes() {
		validScopes[string(scope)] = true
	}
	return validScopes
}

// ValidateScopes checks if all provided scopes are valid
func ValidateScopes(scopes []string) error {
	validScopes := ValidScopes()

	for _, scope := range scopes {
		if !validScopes[scope] {
			return fmt.Errorf("invalid scope: %s", scope)
		}
	}

	return nil
}

// HasScope checks if a user has a required scope
// Supports wildcard admin scope
func HasScope(userScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range userScopes {
		// Check for exact match
		if scope == requiredStr {
			return true
		}

		// Check for admin wildcard
		if scope == string(ScopeAdmin) {
			return true
		}

		// audit:admin covers both read and write
		if scope == string(ScopeAuditAdmin) &&
			(required == ScopeAuditRead || required == ScopeAuditWrite) {
			return true
		}

		// Write/manage permission implies read permission
		if required == ScopeOrganizationsRead && scope == string(ScopeOrganizationsWrite) {
			return true
		}
	}

	return false
}

// HasAnyScope checks if a user has at least one of the required scopes
func HasAnyScope(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(userScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a user has all of the required scopes
func HasAllScopes(userScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(userScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns default scopes for a new service token
func GetDefaultScopes() []string {
	return []string{
		string(ScopeAuditWrite),
	}
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	validScopes := ValidScopes()
	if !validScopes[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
