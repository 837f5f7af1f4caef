// Package profile normalizes raw provider profile payloads into the
// fields the rest of the auth service consumes.
package profile

import (
	"net/mail"
	"strings"
)

// EmailEntry is one email record from a provider profile. Type carries the
// provider's label for the address, such as "work" or "home".
type EmailEntry struct {
	Value string
	Type  string
}

// Raw is the provider-shaped profile before normalization.
type Raw struct {
	SubjectID   string
	DisplayName string
	Emails      []EmailEntry
}

// Normalized is the provider-agnostic projection of a profile.
//
// Email is empty when the profile carried no usable address.
type Normalized struct {
	SubjectID   string
	DisplayName string
	Email       string
}

// Normalize projects a raw profile into the normalized shape.
//
// Email selection prefers the first "work"-typed entry that parses as an
// address, then falls back to the first entry if it parses, otherwise no
// email is selected. Normalize never fails; an unusable profile simply
// yields an empty Email.
func Normalize(raw Raw) Normalized {
	n := Normalized{
		SubjectID:   raw.SubjectID,
		DisplayName: strings.TrimSpace(raw.DisplayName),
	}
	n.Email = selectEmail(raw.Emails)
	return n
}

func selectEmail(entries []EmailEntry) string {
	for _, entry := range entries {
		if strings.EqualFold(entry.Type, "work") && validEmail(entry.Value) {
			return strings.TrimSpace(entry.Value)
		}
	}
	if len(entries) > 0 && validEmail(entries[0].Value) {
		return strings.TrimSpace(entries[0].Value)
	}
	return ""
}

func validEmail(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := mail.ParseAddress(value)
	return err == nil
}
