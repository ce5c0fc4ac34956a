package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/erp/stockledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var setupValidatorOnce sync.Once

// SetupValidator makes validation errors report JSON field names
func SetupValidator() {
	setupValidatorOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterTagNameFunc(func(fld reflect.StructField) string {
				name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name == "" {
					name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
				}
				return name
			})
		}
	})
}

// FormatValidationErrors formats validation errors into a standard response
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   validationField(e),
				Message: getValidationMessage(e),
			})
		}
	}

	return dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	)
}

// HandleValidationError answers a failed ShouldBind. Malformed JSON is a
// BAD_REQUEST; field rule violations are a VALIDATION_ERROR listing the fields.
func HandleValidationError(c *gin.Context, err error) {
	requestID := RequestIDFrom(c)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		resp := dto.NewErrorResponse(dto.ErrCodeBadRequest, "Malformed request body: "+err.Error())
		resp.Error.RequestID = requestID
		c.Set(ErrorCodeKey, dto.ErrCodeBadRequest)
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return
	}
	c.Set(ErrorCodeKey, dto.ErrCodeValidation)
	c.AbortWithStatusJSON(http.StatusBadRequest, FormatValidationErrors(err, requestID))
}

// validationField returns the field path without the top-level struct name,
// e.g. "scans[0].quantity".
func validationField(e validator.FieldError) string {
	ns := e.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return e.Field()
}

// getValidationMessage returns a human-readable validation message
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_if":
		return "This field is required"
	case "min":
		switch e.Kind() {
		case reflect.String:
			return "Must be at least " + e.Param() + " characters"
		case reflect.Slice, reflect.Array:
			return "Must contain at least " + e.Param() + " items"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "numeric":
		return "Must be numeric"
	default:
		return "Invalid value"
	}
}
