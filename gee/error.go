package gee

// ErrorResponse is the body of every error reply: a human readable message and,
// for validation failures, an optional structured detail.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func NewErrorResponse(message string, details any) ErrorResponse {
	return ErrorResponse{
		Error:   message,
		Details: details,
	}
}
