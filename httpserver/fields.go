package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

var jsonNull = []byte("null")

// requestFields gives json bodies and (multipart) forms the same shape:
// a set of named fields that may be missing, null or set.
type requestFields struct {
	json  map[string]json.RawMessage
	form  url.Values
	files map[string][]*multipart.FileHeader
}

func readRequestFields(c *gin.Context, maxBytes int64) (*requestFields, error) {
	req := c.Request
	if maxBytes > 0 {
		req.Body = http.MaxBytesReader(c.Writer, req.Body, maxBytes)
	}

	switch c.ContentType() {
	case gin.MIMEJSON:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		fields := &requestFields{json: make(map[string]json.RawMessage)}
		if len(bytes.TrimSpace(body)) == 0 {
			return fields, nil
		}
		if err := json.Unmarshal(body, &fields.json); err != nil {
			return nil, fmt.Errorf("JSON parse error - %v", err)
		}
		return fields, nil
	case gin.MIMEMultipartPOSTForm:
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			return nil, err
		}
		return &requestFields{
			form:  url.Values(req.MultipartForm.Value),
			files: req.MultipartForm.File,
		}, nil
	default:
		if err := req.ParseForm(); err != nil {
			return nil, err
		}
		return &requestFields{form: req.PostForm}, nil
	}
}

func (fields *requestFields) IsJSON() bool {
	return fields.json != nil
}

func (fields *requestFields) Has(name string) bool {
	if fields.json != nil {
		_, ok := fields.json[name]
		return ok
	}
	_, ok := fields.form[name]
	return ok
}

// String returns a field as text. JSON null and missing fields are "".
// JSON numbers and booleans come back as their literal.
func (fields *requestFields) String(name string) (string, error) {
	if fields.json == nil {
		return strings.TrimSpace(fields.form.Get(name)), nil
	}

	raw, ok := fields.json[name]
	if !ok || bytes.Equal(raw, jsonNull) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}

	switch raw[0] {
	case '{', '[':
		return "", errors.New("Not a valid string.")
	}
	return string(raw), nil
}

// Raw returns a field holding JSON. Form fields are taken as JSON text.
// nil means null or missing.
func (fields *requestFields) Raw(name string) json.RawMessage {
	if fields.json == nil {
		value := strings.TrimSpace(fields.form.Get(name))
		if value == "" {
			return nil
		}
		return json.RawMessage(value)
	}

	raw, ok := fields.json[name]
	if !ok || bytes.Equal(raw, jsonNull) {
		return nil
	}
	return raw
}

// SetRaw replaces a JSON field, used for values read from uploaded files.
func (fields *requestFields) SetRaw(name string, raw []byte) {
	if fields.json != nil {
		fields.json[name] = raw
		return
	}
	if fields.form == nil {
		fields.form = make(url.Values)
	}
	fields.form.Set(name, string(raw))
}

func (fields *requestFields) File(name string) *multipart.FileHeader {
	if files := fields.files[name]; len(files) > 0 && files[0].Size > 0 {
		return files[0]
	}
	return nil
}

// readStrings fills 'dest' from the request for every field present.
func (fields *requestFields) readStrings(errs FieldErrors, dest map[string]*string) {
	for name, ptr := range dest {
		if !fields.Has(name) {
			continue
		}
		value, err := fields.String(name)
		if err != nil {
			errs.Add(name, err.Error())
			continue
		}
		*ptr = value
	}
}

func (fields *requestFields) requireFields(errs FieldErrors, names ...string) {
	for _, name := range names {
		if !fields.Has(name) {
			errs.Add(name, msgRequired)
		}
	}
}
