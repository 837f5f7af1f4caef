package profile

import "testing"

func TestNormalizeEmailSelection(t *testing.T) {
	tests := []struct {
		name   string
		emails []EmailEntry
		want   string
	}{
		{
			name: "prefers work typed entry",
			emails: []EmailEntry{
				{Value: "home@example.com", Type: "home"},
				{Value: "work@example.com", Type: "work"},
			},
			want: "work@example.com",
		},
		{
			name: "work type matched case insensitively",
			emails: []EmailEntry{
				{Value: "first@example.com"},
				{Value: "work@example.com", Type: "Work"},
			},
			want: "work@example.com",
		},
		{
			name: "falls back to first entry",
			emails: []EmailEntry{
				{Value: "first@example.com", Type: "home"},
				{Value: "second@example.com", Type: "other"},
			},
			want: "first@example.com",
		},
		{
			name: "invalid work entry skipped for valid one",
			emails: []EmailEntry{
				{Value: "not-an-address", Type: "work"},
				{Value: "backup@example.com", Type: "work"},
			},
			want: "backup@example.com",
		},
		{
			name: "invalid first entry yields no email",
			emails: []EmailEntry{
				{Value: "not-an-address", Type: "home"},
				{Value: "valid@example.com", Type: "home"},
			},
			want: "",
		},
		{
			name:   "no entries yields no email",
			emails: nil,
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(Raw{SubjectID: "s-1", Emails: tt.emails})
			if got.Email != tt.want {
				t.Fatalf("expected email %q, got %q", tt.want, got.Email)
			}
		})
	}
}

func TestNormalizeCarriesIdentityFields(t *testing.T) {
	got := Normalize(Raw{SubjectID: "g-9", DisplayName: "  Ada Lovelace  "})
	if got.SubjectID != "g-9" {
		t.Fatalf("expected subject id carried through, got %q", got.SubjectID)
	}
	if got.DisplayName != "Ada Lovelace" {
		t.Fatalf("expected trimmed display name, got %q", got.DisplayName)
	}
}
