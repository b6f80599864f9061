package xiaozhi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type Kind int

const (
	KindSuccess Kind = iota
	KindApplicationError
	KindTransportError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindApplicationError:
		return "application_error"
	case KindTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of every API call. Failures are reported here, never as an error.
type Result struct {
	Code    int            `json:"code"`
	Message string         `json:"message,omitempty"`
	Body    map[string]any `json:"-"`

	transport bool
}

func (r Result) OK() bool {
	return !r.transport && r.Code == CodeSuccess
}

func (r Result) Kind() Kind {
	switch {
	case r.transport:
		return KindTransportError
	case r.Code == CodeSuccess:
		return KindSuccess
	default:
		return KindApplicationError
	}
}

func transportFailure(err error) Result {
	message := err.Error()
	if message == "" {
		message = "transport error"
	}
	return Result{
		Code:      CodeTransportFailure,
		Message:   message,
		Body:      map[string]any{"code": CodeTransportFailure, "message": message},
		transport: true,
	}
}

// decodeResult parses a response body. Anything that is not a JSON object is a malformed response.
func decodeResult(raw []byte) Result {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return transportFailure(fmt.Errorf("malformed response: %w", err))
	}
	if body == nil {
		return transportFailure(errors.New("malformed response: empty body"))
	}

	result := Result{Body: body}
	if code, ok := body["code"].(float64); ok && code == math.Trunc(code) {
		result.Code = int(code)
	}
	if message, ok := body["message"].(string); ok {
		result.Message = message
	}
	return result
}
