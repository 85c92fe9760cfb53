package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/smallbiznis/subtrack/internal/billingcycle/domain"
	notificationdomain "github.com/smallbiznis/subtrack/internal/notification/domain"
	pricehistorydomain "github.com/smallbiznis/subtrack/internal/pricehistory/domain"
	subscriptiondomain "github.com/smallbiznis/subtrack/internal/subscription/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(err),
					Code:    validationErrorCode(err),
					Message: err.Error(),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, subscriptiondomain.ErrInvalidOwner),
		errors.Is(err, notificationdomain.ErrInvalidOwner):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, subscriptiondomain.ErrNameConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "a subscription with this name already exists",
		}
	case errors.Is(err, subscriptiondomain.ErrInvalidState):
		return http.StatusConflict, errorPayload{
			Type:    "invalid_state",
			Message: "subscription is archived",
		}
	case errors.Is(err, subscriptiondomain.ErrPersistenceFailure),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Message:   "service unavailable",
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrInvalidDate),
		errors.Is(err, subscriptiondomain.ErrInvalidRange),
		errors.Is(err, pricehistorydomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, notificationdomain.ErrNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidName):
		return subscriptiondomain.ErrInvalidName.Error()
	case errors.Is(err, subscriptiondomain.ErrInvalidCategory):
		return subscriptiondomain.ErrInvalidCategory.Error()
	case errors.Is(err, billingcycledomain.ErrInvalidBillingCycle):
		return billingcycledomain.ErrInvalidBillingCycle.Error()
	case errors.Is(err, subscriptiondomain.ErrInvalidDate):
		return subscriptiondomain.ErrInvalidDate.Error()
	case errors.Is(err, subscriptiondomain.ErrInvalidRange),
		errors.Is(err, pricehistorydomain.ErrInvalidAmount):
		return subscriptiondomain.ErrInvalidRange.Error()
	default:
		return "invalid_request"
	}
}

// validationFields maps the field names carried in validation messages.
var validationFields = []string{
	"connected_date",
	"next_payment_date",
	"notify_days_before",
	"current_amount",
}

func validationErrorField(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidName):
		return "name"
	case errors.Is(err, subscriptiondomain.ErrInvalidCategory):
		return "category"
	case errors.Is(err, billingcycledomain.ErrInvalidBillingCycle):
		return "billing_cycle"
	case errors.Is(err, pricehistorydomain.ErrInvalidAmount):
		return "current_amount"
	}
	msg := err.Error()
	for _, field := range validationFields {
		if strings.Contains(msg, field) {
			return field
		}
	}
	return "request"
}
