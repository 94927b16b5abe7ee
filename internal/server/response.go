package server

import (
	"encoding/json"
	"fmt"
	"net"

	router "github.com/H-Chris233/api-router/internal"
)

type header struct {
	name  string
	value string
}

// writeSuccess sends a 200 with the payload framed by Content-Length.
func writeSuccess(conn net.Conn, contentType string, payload []byte) error {
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
		contentType, len(payload))
	response := make([]byte, 0, len(head)+len(payload))
	response = append(response, head...)
	response = append(response, payload...)
	if _, err := conn.Write(response); err != nil {
		return router.WrapErr(router.KindIO, "writing response", err)
	}
	return nil
}

// buildErrorResponse renders the OpenAI-style error envelope with the
// given status line and optional extra headers.
func buildErrorResponse(status int, reason, message string, extra ...header) []byte {
	body, err := json.Marshal(map[string]any{
		"error": map[string]string{"message": message},
	})
	if err != nil {
		body = []byte(`{"error":{"message":"internal error"}}`)
	}

	response := fmt.Appendf(nil, "HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n",
		status, reason, len(body))
	for _, h := range extra {
		response = fmt.Appendf(response, "%s: %s\r\n", h.name, h.value)
	}
	response = append(response, "\r\n"...)
	response = append(response, body...)
	return response
}

// writeError maps an error to its wire response through the kind taxonomy.
func (s *Server) writeError(conn net.Conn, err error) {
	kind := router.KindOf(err)
	conn.Write(buildErrorResponse(kind.HTTPStatus(), kind.Reason(), err.Error()))
}
