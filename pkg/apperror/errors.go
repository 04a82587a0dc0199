package apperror

import (
	"errors"
	"net/http"

	"github.com/collectdesk/collectdesk/internal/domain"
)

// AppError is the transport-facing form of an error
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: "BAD_REQUEST", Message: "Bad request", Status: http.StatusBadRequest}
	ErrUnauthorized   = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Not found", Status: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred", Status: http.StatusInternalServerError}
)

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

// statusByCode maps domain error codes to HTTP statuses
var statusByCode = map[domain.ErrorCode]int{
	domain.ErrCodeNotFound:               http.StatusNotFound,
	domain.ErrCodeSpecializationMismatch: http.StatusUnprocessableEntity,
	domain.ErrCodeCapacityExhausted:      http.StatusUnprocessableEntity,
	domain.ErrCodeAlreadyAssigned:        http.StatusUnprocessableEntity,
	domain.ErrCodeOfficerInactive:        http.StatusUnprocessableEntity,
	domain.ErrCodeInvalidRequest:         http.StatusBadRequest,
	domain.ErrCodeVersionConflict:        http.StatusConflict,
	domain.ErrCodeBatchInProgress:        http.StatusConflict,
}

// MapError converts err into an AppError. Domain errors keep their code and
// message; storage and unknown errors become a generic 500 so that driver
// messages never reach clients.
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		status, ok := statusByCode[de.Code]
		if !ok {
			return &AppError{Code: string(de.Code), Message: ErrInternalServer.Message, Status: http.StatusInternalServerError}
		}
		return &AppError{Code: string(de.Code), Message: de.Message, Status: status}
	}

	return ErrInternalServer
}
