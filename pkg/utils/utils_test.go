package utils

import "testing"

func TestNormalizePhoneE164(t *testing.T) {
	cases := []struct {
		in, cc, want string
	}{
		{"", "+91", ""},
		{"+919876543210", "+91", "+919876543210"},
		{"98765 43210", "+91", "+919876543210"},
		{"(987) 654-3210", "+91", "+919876543210"},
		{"919876543210", "+91", "+919876543210"},
		{"9876543210", "", "+19876543210"},
		{"9876543210", "91", "+919876543210"},
	}
	for _, tc := range cases {
		if got := NormalizePhoneE164(tc.in, tc.cc); got != tc.want {
			t.Fatalf("NormalizePhoneE164(%q, %q) = %q, want %q", tc.in, tc.cc, got, tc.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"plain", "plain"},
		{"<b>bold</b>", "bold"},
		{"  <p>Chop Shop</p>  ", "Chop Shop"},
		{"<script>alert(1)</script>hi", "alert(1)hi"},
	}
	for _, tc := range cases {
		if got := StripHTML(tc.in); got != tc.want {
			t.Fatalf("StripHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeID(t *testing.T) {
	if got := SanitizeID("  q-123  "); got != "q-123" {
		t.Fatalf("SanitizeID = %q", got)
	}
}
