// Package responseformat writes HTTP responses as JSON or MessagePack.
package responseformat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgPack = "application/x-msgpack"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WantsMsgPack reports whether the client asked for MessagePack, either
// with format=msgpack or an Accept header naming it
func WantsMsgPack(req *http.Request) bool {
	if req.URL.Query().Get("format") == "msgpack" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), ContentTypeMsgPack)
}

// WriteResponse writes data with the given status. JSON is the default.
// The body is encoded before the status is sent, so an encoding failure
// turns into a 500 error response and is returned to the caller.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	contentType := ContentTypeJSON
	encode := encodeJSON
	if WantsMsgPack(req) {
		contentType = ContentTypeMsgPack
		encode = encodeMsgPack
	}

	body, encodeErr := encode(data)
	if encodeErr != nil {
		encodeErr = fmt.Errorf("encoding %s response: %w", contentType, encodeErr)
		fallback, err := encode(ErrorBody{Error: "failed to encode response"})
		if err != nil {
			return errors.Join(encodeErr, err)
		}
		body, status = fallback, http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		return errors.Join(encodeErr, err)
	}
	return encodeErr
}

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes an error message with the given status
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	return f.WriteResponse(w, req, status, ErrorBody{Error: msg})
}

func encodeJSON(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeMsgPack(data any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := msgpack.NewEncoder(&buf)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	if err := encoder.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
