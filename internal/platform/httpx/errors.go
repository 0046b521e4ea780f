// Package httpx provides HTTP response utilities.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable")
	ErrUnavailable   = errors.New("upstream unavailable")
)

// Violation names one failed rule of a request or document.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ViolationError carries every violation found in a request or a document. Request
// violations map to 400; document violations map to 422.
type ViolationError struct {
	Request    bool
	Violations []Violation
}

func (e *ViolationError) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0].Message
	}
	if e.Request {
		return "request has validation errors"
	}
	return "document has validation errors"
}

// Unwrap lets errors.Is match ErrValidation or ErrUnprocessable.
func (e *ViolationError) Unwrap() error {
	if e.Request {
		return ErrValidation
	}
	return ErrUnprocessable
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var violations *ViolationError
	switch {
	case errors.As(err, &violations):
		status, title := http.StatusUnprocessableEntity, "Unprocessable Document"
		if violations.Request {
			status, title = http.StatusBadRequest, "Validation Failed"
		}
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ProblemDetail{
			Title:      title,
			Status:     status,
			Detail:     violations.Error(),
			Violations: violations.Violations,
		})
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable Document", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Service Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
