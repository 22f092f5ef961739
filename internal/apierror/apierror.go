// Package apierror provides the error envelope written by every 4xx/5xx
// response. Handlers never serialize raw errors, so database messages and
// stack traces stay in the logs.
package apierror

// APIError is the canonical error envelope. Kind and Code are set for engine
// errors and let clients branch without parsing Detail.
type APIError struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind,omitempty"`
	Code   string `json:"code,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// WithCode builds an envelope for a classified engine error.
func WithCode(kind, code, msg string) *APIError {
	return &APIError{Detail: msg, Kind: kind, Code: code}
}

// ValidationError lists failing request fields with the validator tag that
// rejected each one.
type ValidationError struct {
	Detail string            `json:"detail"`
	Kind   string            `json:"kind"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{
		Detail: "request validation failed",
		Kind:   "ValidationError",
		Code:   "ValidationError",
		Fields: fields,
	}
}
