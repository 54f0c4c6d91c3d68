package common

// ErrorResponse Represents an error.
type ErrorResponse struct {
	// The error message.
	// Required: true
	Message string `json:"message"`
}

// Error returns the error message
func (e ErrorResponse) Error() string {
	return e.Message
}
