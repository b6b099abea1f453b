package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mycloud-app/mycloud/internal/validate"
)

// NetworkError means the request never produced a response.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is a 401 or 403 answer.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// ServerError is any other non-2xx answer. Message holds the server supplied
// text when there was one.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
}

// errorBody covers both error shapes the API uses.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (b errorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	return b.Error
}

func statusError(status int, message string) error {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &AuthError{Status: status, Message: message}
	}
	return &ServerError{Status: status, Message: message}
}

// Message converts err into the string shown next to the failed feature.
// fallback is used when the error carries nothing readable.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}

	var verr *validate.ValidationError
	var aerr *AuthError
	var serr *ServerError
	var nerr *NetworkError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &aerr):
		if aerr.Message != "" {
			return aerr.Message
		}
	case errors.As(err, &serr):
		if serr.Message != "" {
			return serr.Message
		}
	case errors.As(err, &nerr):
		return "Network error: " + nerr.Err.Error()
	}
	return fallback
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var aerr *AuthError
	return errors.As(err, &aerr)
}
