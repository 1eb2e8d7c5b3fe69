package validation

import (
	"strings"
	"testing"
)

func TestValidateInviteCode(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{"valid 8 chars", "ABCD1234", false},
		{"valid 16 chars", "ABCDEFGH12345678", false},
		{"valid all digits", "12345678", false},
		{"empty", "", true},
		{"too short", "ABC1234", true},
		{"too long", "ABCDEFGH123456789", true},
		{"lowercase rejected", "abcd1234", true},
		{"special chars rejected", "ABCD-123", true},
		{"whitespace rejected", "ABCD 123", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInviteCode(tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInviteCode(%q) error = %v, wantErr %v", tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSubjectID(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		wantErr bool
	}{
		{"auth0 style", "auth0|507f1f77bcf86cd799439011", false},
		{"google oauth style", "google-oauth2|109876543210", false},
		{"email style", "user@example.com", false},
		{"plain id", "user_42", false},
		{"empty", "", true},
		{"slash rejected", "auth0/alice", true},
		{"space rejected", "auth0 alice", true},
		{"too long", strings.Repeat("a", 129), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubjectID(tt.subject)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubjectID(%q) error = %v, wantErr %v", tt.subject, err, tt.wantErr)
			}
		})
	}
}
