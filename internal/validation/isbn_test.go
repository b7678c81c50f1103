package validation

import "testing"

func TestIsValidISBN(t *testing.T) {
	tests := []struct {
		name  string
		isbn  string
		valid bool
	}{
		{
			name:  "valid isbn-13",
			isbn:  "9780306406157",
			valid: true,
		},
		{
			name:  "valid isbn-13 with dashes",
			isbn:  "978-0-306-40615-7",
			valid: true,
		},
		{
			name:  "valid isbn-10",
			isbn:  "0306406152",
			valid: true,
		},
		{
			name:  "valid isbn-10 with X check digit",
			isbn:  "080442957X",
			valid: true,
		},
		{
			name:  "invalid isbn-13 checksum",
			isbn:  "9780306406158",
			valid: false,
		},
		{
			name:  "invalid isbn-10 checksum",
			isbn:  "0306406153",
			valid: false,
		},
		{
			name:  "contains letters",
			isbn:  "97803064a6157",
			valid: false,
		},
		{
			name:  "wrong length",
			isbn:  "12345",
			valid: false,
		},
		{
			name:  "empty string",
			isbn:  "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidISBN(tt.isbn)
			if got != tt.valid {
				t.Fatalf("IsValidISBN(%q) = %v, want %v", tt.isbn, got, tt.valid)
			}
		})
	}
}
