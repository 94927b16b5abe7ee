package httpparse

import (
	"bytes"
	"testing"
)

func TestParse_Basic(t *testing.T) {
	t.Parallel()
	raw := []byte("POST /v1/chat/completions?x=1 HTTP/1.1\r\nHost: localhost\r\nContent-Type: application/json\r\n\r\n{\"model\":\"m\"}")
	p, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Method != "POST" || p.Target != "/v1/chat/completions?x=1" || p.Version != "HTTP/1.1" {
		t.Errorf("request line = %s %s %s", p.Method, p.Target, p.Version)
	}
	if p.RoutePath() != "/v1/chat/completions" {
		t.Errorf("route path = %q", p.RoutePath())
	}
	if p.Header("content-type") != "application/json" {
		t.Errorf("content-type = %q", p.Header("content-type"))
	}
	if string(p.Body) != `{"model":"m"}` {
		t.Errorf("body = %q", p.Body)
	}
}

func TestParse_LowercasesHeaderNames(t *testing.T) {
	t.Parallel()
	raw := []byte("GET / HTTP/1.1\r\nX-Request-ID:  abc \r\nAUTHORIZATION: Bearer tok\r\n\r\n")
	p, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if p.Header("x-request-id") != "abc" {
		t.Errorf("x-request-id = %q", p.Header("x-request-id"))
	}
	if p.Header("authorization") != "Bearer tok" {
		t.Errorf("authorization = %q", p.Header("authorization"))
	}
}

func TestParse_BinaryBodyKeptVerbatim(t *testing.T) {
	t.Parallel()
	body := []byte{0x00, 0xff, 0x13, 0x37, '\r', '\n', 0x01}
	raw := append([]byte("POST /v1/audio/transcriptions HTTP/1.1\r\nContent-Length: 7\r\n\r\n"), body...)
	p, err := Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Body, body) {
		t.Errorf("body changed: %v", p.Body)
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	cases := [][]byte{
		[]byte("GET / HTTP/1.1\r\nHost: x\r\n"),              // no terminator
		[]byte("GET /\r\n\r\n"),                              // two-field request line
		[]byte("GET / HTTP/1.1 extra\r\n\r\n"),               // four fields
		append([]byte("GET / HTTP/1.1\r\nX: "), 0xff, 0xfe, '\r', '\n', '\r', '\n', '\r', '\n'), // invalid UTF-8 in headers
	}
	for i, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Errorf("case %d should fail", i)
		}
	}
}

func TestParse_EmptyBody(t *testing.T) {
	t.Parallel()
	p, err := Parse([]byte("POST /v1/embeddings HTTP/1.1\r\nHost: x\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.HasBody() {
		t.Error("body should be empty")
	}
}

func TestContentLength(t *testing.T) {
	t.Parallel()
	if n, ok := ContentLength([]byte("Host: x\r\nContent-Length: 42\r\n")); !ok || n != 42 {
		t.Errorf("got %d %v", n, ok)
	}
	if n, ok := ContentLength([]byte("content-length:7\r\n")); !ok || n != 7 {
		t.Errorf("lowercase: got %d %v", n, ok)
	}
	if _, ok := ContentLength([]byte("Host: x\r\n")); ok {
		t.Error("absent header should report false")
	}
	if _, ok := ContentLength([]byte("Content-Length: nope\r\n")); ok {
		t.Error("unparsable value should report false")
	}
}
