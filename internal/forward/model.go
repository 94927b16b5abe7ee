package forward

import (
	"bytes"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	router "github.com/H-Chris233/api-router/internal"
	"github.com/H-Chris233/api-router/internal/config"
)

// RewriteJSONModel maps the "model" field of a JSON body through the
// config's model mapping. Bodies without a model, or models with no
// mapping, come back untouched. Invalid JSON is a client error.
func RewriteJSONModel(body []byte, cfg *config.API) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, router.Errorf(router.KindJSON, "invalid JSON body")
	}
	model := gjson.GetBytes(body, "model")
	if !model.Exists() {
		return body, nil
	}
	mapped := cfg.MapModel(model.String())
	if mapped == model.String() {
		return body, nil
	}
	out, err := sjson.SetBytes(body, "model", mapped)
	if err != nil {
		return nil, router.WrapErr(router.KindJSON, "rewriting model field", err)
	}
	return out, nil
}

// ShouldStream reads the "stream" flag from a JSON body. Absent or
// non-boolean values mean no streaming.
func ShouldStream(body []byte) bool {
	v := gjson.GetBytes(body, "stream")
	return v.Type == gjson.True
}

var (
	modelFieldMarker = []byte(`name="model"`)
	partSeparator    = []byte("\r\n\r\n")
	lineBreak        = []byte("\r\n")
)

// RewriteMultipartModel splices a mapped model name into a multipart body
// without decoding any other part. The body is returned as-is when no
// model field is present or no mapping applies.
func RewriteMultipartModel(body []byte, cfg *config.API) []byte {
	start, end, ok := modelValueBounds(body)
	if !ok {
		return body
	}
	original := string(body[start:end])
	mapped := cfg.MapModel(original)
	if mapped == original {
		return body
	}

	out := make([]byte, 0, len(body)-(end-start)+len(mapped))
	out = append(out, body[:start]...)
	out = append(out, mapped...)
	out = append(out, body[end:]...)
	return out
}

// modelValueBounds locates the value of the multipart "model" field: the
// bytes between the part's blank line and the next CRLF (or end of body).
func modelValueBounds(body []byte) (start, end int, ok bool) {
	marker := bytes.Index(body, modelFieldMarker)
	if marker < 0 {
		return 0, 0, false
	}
	afterMarker := marker + len(modelFieldMarker)
	sep := bytes.Index(body[afterMarker:], partSeparator)
	if sep < 0 {
		return 0, 0, false
	}
	start = afterMarker + sep + len(partSeparator)
	if rel := bytes.Index(body[start:], lineBreak); rel >= 0 {
		end = start + rel
	} else {
		end = len(body)
	}
	return start, end, true
}
