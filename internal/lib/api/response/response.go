// Package response defines the common JSON envelope for API replies.
package response

// Response is the generic API reply envelope.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK builds a success envelope.
func OK() Response {
	return Response{Success: true}
}

// Error builds a failure envelope with a human-readable message.
func Error(msg string) Response {
	return Response{Success: false, Message: msg}
}
