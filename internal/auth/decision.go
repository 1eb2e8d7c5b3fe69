// Package auth resolves the caller's identity from an inbound request and
// produces a uniform authorization decision. Two credential forms are
// supported: long-lived API keys (looked up by digest in the atomic store)
// and short-lived bearer tokens (verified against an external identity
// provider). See resolver.go for the request-time decision logic.
package auth

// Outcome is the terminal result of credential resolution.
type Outcome int

const (
	// OutcomeUnauthorized means the caller could not be identified at all:
	// missing or malformed credentials, failed verification, unknown or
	// revoked key. No reason is attached; an unauthenticated caller must
	// not learn which check failed.
	OutcomeUnauthorized Outcome = iota

	// OutcomeDeny means the caller was identified but is blocked for a
	// known account-state reason. The reason is safe to surface because
	// the caller has already proven possession of a valid credential.
	OutcomeDeny

	// OutcomeAllow admits the request.
	OutcomeAllow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	default:
		return "unauthorized"
	}
}

// ReasonCode identifies why an identified caller was denied.
type ReasonCode string

const (
	ReasonSuspendedAccount ReasonCode = "SUSPENDED_ACCOUNT"
	ReasonInviteRequired   ReasonCode = "INVITE_REQUIRED"
)

// CredentialKind records which credential form authenticated the caller.
type CredentialKind string

const (
	CredentialToken  CredentialKind = "token"
	CredentialAPIKey CredentialKind = "api-key"
)

// DecisionContext is the context bag handed to downstream request handlers
// alongside an Allow decision. Scopes and KeyID are only meaningful for
// API-key callers.
type DecisionContext struct {
	CredentialKind CredentialKind
	KeyID          string
	Scopes         []string
}

// Decision is the uniform authorization outcome exposed to collaborators.
// SubjectID is set for Allow and Deny (the caller was identified); Reason is
// set only for Deny.
type Decision struct {
	Outcome   Outcome
	SubjectID string
	Role      string
	Reason    ReasonCode
	Context   DecisionContext
}

// Allowed reports whether the decision admits the request.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// Allow builds an admitting decision.
func Allow(subjectID, role string, dc DecisionContext) Decision {
	return Decision{Outcome: OutcomeAllow, SubjectID: subjectID, Role: role, Context: dc}
}

// Deny builds an identified-but-blocked decision.
func Deny(subjectID string, reason ReasonCode, dc DecisionContext) Decision {
	return Decision{Outcome: OutcomeDeny, SubjectID: subjectID, Reason: reason, Context: dc}
}

// Unauthorized builds an unidentified-caller decision.
func Unauthorized() Decision {
	return Decision{Outcome: OutcomeUnauthorized}
}
