package services

import (
	"errors"
	"net/http"
)

// Error kinds returned by the services. Handlers map them to HTTP statuses.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrFull      = errors.New("full")
	ErrInvalid   = errors.New("invalid")
)

// ServiceError is a client-facing failure with the status it should be reported as
type ServiceError struct {
	Kind    error
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

// newError builds a ServiceError with the default status for kind
func newError(kind error, message string) *ServiceError {
	return &ServiceError{Kind: kind, Status: defaultStatus(kind), Message: message}
}

// withStatus overrides the status of a ServiceError
func withStatus(status int, err *ServiceError) *ServiceError {
	err.Status = status
	return err
}

func defaultStatus(kind error) int {
	switch kind {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrForbidden:
		return http.StatusForbidden
	case ErrFull:
		return http.StatusMethodNotAllowed
	case ErrConflict, ErrInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func invalid(message string) *ServiceError {
	return newError(ErrInvalid, message)
}

func rideNotFound() *ServiceError {
	return newError(ErrNotFound, "Ride not found in the DB.")
}

func userNotFound() *ServiceError {
	return newError(ErrNotFound, "User not found in the DB.")
}
