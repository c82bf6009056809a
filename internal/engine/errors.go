package engine

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"leads-dashboard/internal/fieldconfig"
	"leads-dashboard/internal/fields"
	"leads-dashboard/internal/store"
)

type AppError struct {
	Code      string        `json:"code"`
	Status    int           `json:"-"`
	Message   string        `json:"message"`
	Details   []ErrorDetail `json:"details,omitempty"`
	Retryable bool          `json:"retryable,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func ConflictError(msg string) *AppError {
	return &AppError{Code: "CONFLICT", Status: 409, Message: msg}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}

// FetchError reports that data could not be loaded. It is never collapsed
// into an empty result; clients may retry.
func FetchError(what string) *AppError {
	return &AppError{
		Code:      "FETCH_FAILED",
		Status:    503,
		Message:   fmt.Sprintf("Failed to load %s", what),
		Retryable: true,
	}
}

// SaveError names the operation that failed to persist.
func SaveError(operation string) *AppError {
	return &AppError{
		Code:    "SAVE_FAILED",
		Status:  500,
		Message: fmt.Sprintf("Failed to %s", operation),
	}
}

func validationDetails(errs fields.ValidationErrors) []ErrorDetail {
	out := make([]ErrorDetail, len(errs))
	for i, e := range errs {
		out[i] = ErrorDetail{Field: e.Field, Rule: e.Rule, Message: e.Message}
	}
	return out
}

// fetchFailed converts a read error at the operation boundary.
func fetchFailed(what string, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	log.Printf("ERROR: load %s: %v", what, err)
	return FetchError(what)
}

// saveFailed converts a write error at the operation boundary. Domain errors
// keep their meaning; anything else becomes SAVE_FAILED naming operation.
func saveFailed(operation, entity, id string, err error) error {
	var appErr *AppError
	var verrs fields.ValidationErrors
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verrs):
		return ValidationError(validationDetails(verrs))
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError(entity, id)
	case errors.Is(err, fieldconfig.ErrDuplicateKey), errors.Is(err, store.ErrUniqueViolation):
		return ConflictError(err.Error())
	case errors.Is(err, fieldconfig.ErrKeyImmutable):
		return ValidationError([]ErrorDetail{{Field: "field_key", Rule: "immutable", Message: err.Error()}})
	}
	log.Printf("ERROR: %s: %v", operation, err)
	return SaveError(operation)
}

// ErrorHandler renders every error as {"error": {...}}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		return c.Status(code).JSON(ErrorResponse{Error: &AppError{Code: httpCode(code), Message: fiberErr.Message}})
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(ErrorResponse{
		Error: &AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}

func httpCode(status int) string {
	switch status {
	case 400:
		return "INVALID_PAYLOAD"
	case 401:
		return "UNAUTHORIZED"
	case 403:
		return "FORBIDDEN"
	case 404:
		return "NOT_FOUND"
	case 405:
		return "METHOD_NOT_ALLOWED"
	default:
		return "INTERNAL_ERROR"
	}
}
