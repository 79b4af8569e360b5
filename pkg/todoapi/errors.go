package todoapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// NonFieldErrors is the key the API uses for errors not tied to one field.
const NonFieldErrors = "non_field_errors"

// HTTPError is a non-2xx answer from the API. Validation failures carry their
// messages per field in Fields.
type HTTPError struct {
	StatusCode int
	Detail     string
	Fields     map[string][]string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP error! status: %d", e.StatusCode)
	if e.Detail != "" {
		return msg + ": " + e.Detail
	}
	if len(e.Fields) > 0 {
		return msg + ": " + e.fieldSummary()
	}
	return msg
}

func (e *HTTPError) fieldSummary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return strings.Join(parts, "; ")
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}

func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// FieldErrors returns the per-field messages carried by err, or nil.
func FieldErrors(err error) map[string][]string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Fields
	}
	return nil
}

// parseHTTPError reads the API's error body: {"detail": "..."} or
// {"field": ["msg", ...]} with a plain string allowed in place of the list.
func parseHTTPError(status int, body []byte) error {
	he := &HTTPError{StatusCode: status}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return he
	}

	for key, value := range raw {
		msgs := decodeMessages(value)
		if len(msgs) == 0 {
			continue
		}
		if key == "detail" {
			he.Detail = strings.Join(msgs, " ")
			continue
		}
		if he.Fields == nil {
			he.Fields = make(map[string][]string)
		}
		he.Fields[key] = msgs
	}
	return he
}

func decodeMessages(raw json.RawMessage) []string {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}
