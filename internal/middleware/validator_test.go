package middleware

import "testing"

func TestValidateTarget(t *testing.T) {
	cases := []struct {
		url          string
		allowPrivate bool
		ok           bool
	}{
		{"http://testphp.vulnweb.com", false, true},
		{"https://example.com/path?q=1", false, true},
		{"", false, false},
		{"ftp://example.com", false, false},
		{"http://", false, false},
		{"http://localhost:8080", false, false},
		{"http://127.0.0.1", false, false},
		{"http://10.1.2.3", false, false},
		{"http://172.20.0.5", false, false},
		{"http://192.168.1.1", false, false},
		{"http://[::1]:80", false, false},
		{"http://169.254.169.254/latest", false, false},
		{"http://localhost:8080", true, true},
		{"http://10.1.2.3", true, true},
	}
	for _, c := range cases {
		err := ValidateTarget(c.url, c.allowPrivate)
		if (err == nil) != c.ok {
			t.Fatalf("ValidateTarget(%q, %v) = %v, want ok=%v", c.url, c.allowPrivate, err, c.ok)
		}
	}
}

func TestValidateScanID(t *testing.T) {
	if err := ValidateScanID("5f0c2b9e-8a4e-4d6c-9a49-0f3a4b2c1d7e"); err != nil {
		t.Fatalf("valid uuid rejected: %v", err)
	}
	for _, bad := range []string{"", "abc", "5f0c2b9e-8a4e-4d6c-9a49"} {
		if err := ValidateScanID(bad); err == nil {
			t.Fatalf("ValidateScanID(%q) must fail", bad)
		}
	}
}

func TestValidateLimitAndPage(t *testing.T) {
	if ValidateLimit(0) != 20 || ValidateLimit(500) != 100 || ValidateLimit(5) != 5 {
		t.Fatal("unexpected limit clamping")
	}
	if ValidatePage(-1) != 1 || ValidatePage(3) != 3 {
		t.Fatal("unexpected page clamping")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  a\x00b\x07c\n "); got != "abc" {
		t.Fatalf("SanitizeString = %q", got)
	}
}
