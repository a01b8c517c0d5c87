package validation

import "testing"

func TestIsValidTRC20Address(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{
			name:    "valid address",
			address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
			valid:   true,
		},
		{
			name:    "wrong prefix",
			address: "XR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t",
			valid:   false,
		},
		{
			name:    "too short",
			address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6",
			valid:   false,
		},
		{
			name:    "contains zero",
			address: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj60",
			valid:   false,
		},
		{
			name:    "ethereum address",
			address: "0xabcdef1234567890abcdef1234567890abcdef12",
			valid:   false,
		},
		{
			name:    "empty string",
			address: "",
			valid:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidTRC20Address(tt.address)
			if got != tt.valid {
				t.Fatalf("IsValidTRC20Address(%q) = %v, want %v", tt.address, got, tt.valid)
			}
		})
	}
}

func TestIsValidTxHash(t *testing.T) {
	tests := []struct {
		hash  string
		valid bool
	}{
		{hash: "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060", valid: true},
		{hash: "5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060", valid: true},
		{hash: "5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b2206", valid: false},
		{hash: "zz504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060", valid: false},
		{hash: "", valid: false},
	}

	for _, tt := range tests {
		if got := IsValidTxHash(tt.hash); got != tt.valid {
			t.Fatalf("IsValidTxHash(%q) = %v, want %v", tt.hash, got, tt.valid)
		}
	}
}

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{email: "investor@example.com", valid: true},
		{email: "no-at-sign", valid: false},
		{email: "Name <investor@example.com>", valid: false},
		{email: "", valid: false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.email); got != tt.valid {
			t.Fatalf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.valid)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Investor@Example.COM "); got != "investor@example.com" {
		t.Fatalf("NormalizeEmail = %q", got)
	}
}
