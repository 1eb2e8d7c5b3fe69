// Package auth - scopes.go defines permission scope constants for the hub's
// resources and provides HasScope, HasAnyScope, and HasAllScopes helper
// functions for scope checking. Scopes attach to API keys only; token
// callers are governed by role.
package auth

import (
	"errors"
	"fmt"
)

// Scope represents a permission/scope type
type Scope string

const (
	// Content scopes
	ScopeContentRead  Scope = "content:read"
	ScopeContentWrite Scope = "content:write"

	// Profile scopes
	ScopeProfilesRead  Scope = "profiles:read"
	ScopeProfilesWrite Scope = "profiles:write"

	// Invite management scopes
	ScopeInvitesRead   Scope = "invites:read"   // View invites and redemption state
	ScopeInvitesManage Scope = "invites:manage" // Generate and revoke invites

	// API key management scopes
	ScopeAPIKeysManage Scope = "api_keys:manage"

	// Audit log scopes
	ScopeAuditRead Scope = "audit:read"

	// Admin scope (wildcard - all permissions)
	ScopeAdmin Scope = "admin"
)

// AllScopes returns all valid scopes
func AllScopes() []Scope {
	return []Scope{
		ScopeContentRead,
		ScopeContentWrite,
		ScopeProfilesRead,
		ScopeProfilesWrite,
		ScopeInvitesRead,
		ScopeInvitesManage,
		ScopeAPIKeysManage,
		ScopeAuditRead,
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

// HasScope checks if a caller has a required scope.
// Supports the wildcard admin scope; write/manage implies read.
func HasScope(callerScopes []string, required Scope) bool {
	requiredStr := string(required)

	for _, scope := range callerScopes {
		if scope == requiredStr {
			return true
		}
		if scope == string(ScopeAdmin) {
			return true
		}
		if required == ScopeContentRead && scope == string(ScopeContentWrite) {
			return true
		}
		if required == ScopeProfilesRead && scope == string(ScopeProfilesWrite) {
			return true
		}
		if required == ScopeInvitesRead && scope == string(ScopeInvitesManage) {
			return true
		}
	}
	return false
}

// HasAnyScope checks if a caller has at least one of the required scopes
func HasAnyScope(callerScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if HasScope(callerScopes, required) {
			return true
		}
	}
	return false
}

// HasAllScopes checks if a caller has all of the required scopes
func HasAllScopes(callerScopes []string, requiredScopes []Scope) bool {
	for _, required := range requiredScopes {
		if !HasScope(callerScopes, required) {
			return false
		}
	}
	return true
}

// GetDefaultScopes returns default scopes for a new API key
func GetDefaultScopes() []string {
	return []string{
		string(ScopeContentRead),
	}
}

// ValidateScopeString validates a single scope string
func ValidateScopeString(scope string) error {
	if !ValidScopes()[scope] {
		return errors.New("invalid scope")
	}
	return nil
}
