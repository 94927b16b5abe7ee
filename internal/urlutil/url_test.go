package urlutil

import "testing"

func TestParse_HTTPS(t *testing.T) {
	t.Parallel()
	u, err := Parse("https://example.com/api/test")
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "https" || u.Host != "example.com" {
		t.Errorf("scheme/host = %s/%s", u.Scheme, u.Host)
	}
	if u.PortOrDefault() != 443 {
		t.Errorf("port = %d, want 443", u.PortOrDefault())
	}
	if u.Path != "/api/test" || u.Query != "" {
		t.Errorf("path/query = %q/%q", u.Path, u.Query)
	}
}

func TestParse_HTTPWithPort(t *testing.T) {
	t.Parallel()
	u, err := Parse("http://api.example.com:8080/v1/chat")
	if err != nil {
		t.Fatal(err)
	}
	if u.Port != 8080 || u.PortOrDefault() != 8080 {
		t.Errorf("port = %d", u.Port)
	}
	if u.Path != "/v1/chat" {
		t.Errorf("path = %q", u.Path)
	}
}

func TestParse_Query(t *testing.T) {
	t.Parallel()
	u, err := Parse("https://example.com/api/test?key=value&foo=bar")
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/api/test" || u.Query != "key=value&foo=bar" {
		t.Errorf("path/query = %q/%q", u.Path, u.Query)
	}
	if u.RequestTarget() != "/api/test?key=value&foo=bar" {
		t.Errorf("target = %q", u.RequestTarget())
	}
}

func TestParse_RootPath(t *testing.T) {
	t.Parallel()
	u, err := Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/" {
		t.Errorf("path = %q, want /", u.Path)
	}
	if u.RequestTarget() != "/" {
		t.Errorf("target = %q", u.RequestTarget())
	}
}

func TestParse_QueryWithoutPath(t *testing.T) {
	t.Parallel()
	u, err := Parse("https://example.com?query=test")
	if err != nil {
		t.Fatal(err)
	}
	if u.Path != "/" || u.Query != "query=test" {
		t.Errorf("path/query = %q/%q", u.Path, u.Query)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"ftp://example.com",
		"example.com",
		"http://example.com:abc/path",
		"http:///path",
	} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) should fail", raw)
		}
	}
}

func TestParse_DefaultPortHTTP(t *testing.T) {
	t.Parallel()
	u, err := Parse("http://example.com/x")
	if err != nil {
		t.Fatal(err)
	}
	if u.PortOrDefault() != 80 {
		t.Errorf("port = %d, want 80", u.PortOrDefault())
	}
}
