package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/rtc-broker/internal/brokererr"
)

// ApiError is the REST error response shape ({ error: string },
// extended with a status code field so handlers and tests can assert
// on it directly).
type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{StatusCode: http.StatusBadRequest, Message: lower(http.StatusText(http.StatusBadRequest))}
}

func NewNotFoundError() *ApiError {
	return &ApiError{StatusCode: http.StatusNotFound, Message: lower(http.StatusText(http.StatusNotFound))}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{StatusCode: http.StatusInternalServerError, Message: lower(http.StatusText(http.StatusInternalServerError)), Err: err}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{StatusCode: http.StatusUnauthorized, Message: lower(http.StatusText(http.StatusUnauthorized))}
}

func NewForbiddenError() *ApiError {
	return &ApiError{StatusCode: http.StatusForbidden, Message: lower(http.StatusText(http.StatusForbidden))}
}

func NewConflictError() *ApiError {
	return &ApiError{StatusCode: http.StatusConflict, Message: lower(http.StatusText(http.StatusConflict))}
}

func NewTooManyRequestsError() *ApiError {
	return &ApiError{StatusCode: http.StatusTooManyRequests, Message: lower(http.StatusText(http.StatusTooManyRequests))}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{StatusCode: http.StatusMethodNotAllowed, Message: lower(http.StatusText(http.StatusMethodNotAllowed))}
}

// translateError maps the broker-wide error taxonomy onto the
// REST ApiError shape, so every handler that calls into a Store
// shares one mapping instead of re-deriving it per call site.
func translateError(err error) *ApiError {
	switch e := err.(type) {
	case *brokererr.ValidationError:
		return &ApiError{StatusCode: http.StatusBadRequest, Message: e.Msg}
	case *brokererr.Unauthorized:
		return &ApiError{StatusCode: http.StatusUnauthorized, Message: e.Msg}
	case *brokererr.Forbidden:
		return &ApiError{StatusCode: http.StatusForbidden, Message: e.Msg}
	case *brokererr.NotFound:
		return &ApiError{StatusCode: http.StatusNotFound, Message: e.Msg}
	case *brokererr.Conflict:
		return &ApiError{StatusCode: http.StatusConflict, Message: e.Msg}
	case *brokererr.RateLimited:
		return &ApiError{StatusCode: http.StatusTooManyRequests, Message: e.Msg}
	default:
		return NewInternalServerError(err)
	}
}
