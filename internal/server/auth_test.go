package server

import "testing"

func TestParseAuthorizationHeader(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"Bearer sk-abc123", "sk-abc123"},
		{"bearer sk-abc123", "sk-abc123"},
		{"  Bearer sk-abc123  ", "sk-abc123"},
		{"Bearer", ""},
		{"Basic dXNlcjpwYXNz", "Basic dXNlcjpwYXNz"},
		{"raw-token", "raw-token"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := parseAuthorizationHeader(tc.in); got != tc.want {
			t.Errorf("parseAuthorizationHeader(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractClientAPIKey(t *testing.T) {
	t.Parallel()
	if got := extractClientAPIKey(map[string]string{"authorization": "Bearer tok"}, "dflt"); got != "tok" {
		t.Errorf("got %q", got)
	}
	if got := extractClientAPIKey(map[string]string{}, "dflt"); got != "dflt" {
		t.Errorf("missing header should fall back, got %q", got)
	}
	if got := extractClientAPIKey(map[string]string{"authorization": "Bearer"}, "dflt"); got != "dflt" {
		t.Errorf("empty token should fall back, got %q", got)
	}
}

func TestResolveDefaultAPIKey(t *testing.T) {
	t.Setenv("DEFAULT_API_KEY", "from-env")
	if got := resolveDefaultAPIKey(); got != "from-env" {
		t.Errorf("got %q", got)
	}
	t.Setenv("DEFAULT_API_KEY", "")
	if got := resolveDefaultAPIKey(); got != defaultAPIKeyPlaceholder {
		t.Errorf("got %q", got)
	}
}
