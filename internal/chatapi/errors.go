package chatapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SessionError is returned for any non-2xx response from the chat service.
// Detail carries the server's explanation, flattened to a display string.
type SessionError struct {
	StatusCode int
	Detail     string
}

func (e *SessionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("chat service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("chat service returned status %d: %s", e.StatusCode, e.Detail)
}

// extractDetail pulls a human-readable message out of an error response
// body. The service usually replies {"detail": ...} where detail may be a
// string, an array of validation errors, or an object; non-string shapes
// are stringified so they can be shown to the user as-is.
func extractDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Not JSON at all; show the raw body.
		return trimmed
	}

	if len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return s
		}
		// Array or object detail: compact it for display.
		var v any
		if err := json.Unmarshal(envelope.Detail, &v); err == nil {
			if compact, err := json.Marshal(v); err == nil {
				return string(compact)
			}
		}
		return string(envelope.Detail)
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	if envelope.Error != "" {
		return envelope.Error
	}
	return trimmed
}
