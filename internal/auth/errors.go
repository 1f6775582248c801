package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// Error codes returned to clients in the {code, description} body.
const (
	CodeHeaderMissing = "authorization_header_missing"
	CodeInvalidHeader = "invalid_header"
	CodeTokenExpired  = "token_expired"
	CodeForbidden     = "forbidden"
)

// Error is an authentication or authorization failure. Status is the HTTP
// status the transport should answer with.
type Error struct {
	Status      int    `json:"-"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *Error) Error() string {
	return "auth: " + e.Code + ": " + e.Description
}

func newError(status int, code, description string) *Error {
	return &Error{Status: status, Code: code, Description: description}
}

// ErrHeaderMissing is returned when a request carries no credential at all.
func ErrHeaderMissing() *Error {
	return newError(http.StatusUnauthorized, CodeHeaderMissing, "Authorization header expected")
}

// InvalidHeader reports a malformed or unverifiable token.
func InvalidHeader(description string) *Error {
	return newError(http.StatusUnauthorized, CodeInvalidHeader, description)
}

// TokenExpired reports a correctly signed token past its expiry.
func TokenExpired() *Error {
	return newError(http.StatusUnauthorized, CodeTokenExpired, "Token expired.")
}

// Forbidden reports an authenticated caller without the required permission.
func Forbidden(description string) *Error {
	return newError(http.StatusForbidden, CodeForbidden, description)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// WriteError sends err as a {code, description} JSON body. Errors that are
// not an *Error (a key set fetch that failed, for instance) become a 500.
func WriteError(w http.ResponseWriter, err error) {
	authErr, ok := AsError(err)
	if !ok {
		authErr = newError(http.StatusInternalServerError, "internal_error", "Unable to verify credentials")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(authErr.Status)
	if err := json.NewEncoder(w).Encode(authErr); err != nil {
		slog.Error("failed to encode auth error", slog.String("error", err.Error()))
	}
}
