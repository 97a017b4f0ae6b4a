package vault

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// translateFailure turns a terminal pipeline failure into a ClientError.
// It never returns nil: when the response carries no usable error envelope the
// original failure is wrapped as-is.
func translateFailure(failure error) *ClientError {
	if clientErr := translateResponseFailure(failure); clientErr != nil {
		return clientErr
	}
	return newClientError(failure.Error(), extractStatusCode(failure), failure)
}

// translateResponseFailure builds a ClientError from the {code, error} envelope of a
// failed response. It returns nil when the failure has no response, or when the
// response is valid JSON without both envelope fields.
func translateResponseFailure(failure error) *ClientError {
	var statusErr *HTTPStatusError
	if !errors.As(failure, &statusErr) {
		return nil
	}
	resp := statusErr.Response

	data, err := decodeObject(resp.Body)
	if err != nil {
		// the original failure wins over the secondary parse error
		return newClientError(strings.TrimSpace(failure.Error()), resp.StatusCode, failure)
	}

	code, errorMessage := data["code"], data["error"]
	if isEmptyValue(code) || isEmptyValue(errorMessage) {
		return nil
	}

	message := fmt.Sprintf("%s: %s", formatValue(code), formatValue(errorMessage))
	return newClientError(strings.TrimSpace(message), resp.StatusCode, failure)
}

// isEmptyValue reports whether an envelope field counts as absent.
// "0", 0 and false are absent too; the Vault API never uses them as error codes.
func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == "" || val == "0"
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return fmt.Sprint(val)
		}
		return strings.TrimSpace(buf.String())
	}
}
