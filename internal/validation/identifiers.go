// identifiers.go validates the identifier shapes accepted on the wire:
// invite codes and subject IDs. Validation happens at the HTTP boundary so
// the services below it can assume well-formed input.
package validation

import (
	"fmt"
	"regexp"
)

// inviteCodePattern matches generated invite codes: uppercase alphanumeric,
// 8 to 16 characters.
var inviteCodePattern = regexp.MustCompile(`^[A-Z0-9]{8,16}$`)

// subjectIDPattern matches external identity provider subject identifiers,
// e.g. "auth0|507f1f77bcf86cd799439011" or "google-oauth2|1234".
var subjectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9|_.:@-]{1,128}$`)

// ValidateInviteCode validates the format of an invite code
func ValidateInviteCode(code string) error {
	if code == "" {
		return fmt.Errorf("invite code is required")
	}
	if !inviteCodePattern.MatchString(code) {
		return fmt.Errorf("invalid invite code format")
	}
	return nil
}

// ValidateSubjectID validates the format of a subject identifier
func ValidateSubjectID(subjectID string) error {
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}
	if !subjectIDPattern.MatchString(subjectID) {
		return fmt.Errorf("invalid subject id format")
	}
	return nil
}
