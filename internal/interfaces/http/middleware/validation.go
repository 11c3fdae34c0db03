package middleware

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/kambio/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the gin context key the RequestID middleware stores
// the ID under; the header carries it across services.
const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// SetupValidator makes gin's validator report json (or form) tag names
// instead of Go field names, so error details match the wire format.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
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

// HandleValidationError writes a 400 with per-field details.
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, getRequestIDFromContext(c)))
}

// FormatValidationErrors converts validator errors into the standard
// error envelope.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			details = append(details, dto.ValidationDetail{
				Field:   e.Field(),
				Message: validationMessage(e),
			})
		}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

func getRequestIDFromContext(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}

var plainTagMessages = map[string]string{
	"required": "This field is required",
	"email":    "Invalid email format",
	"uuid":     "Invalid UUID format",
	"url":      "Invalid URL format",
	"numeric":  "Must be numeric",
	"alphanum": "Must be alphanumeric",
	"alpha":    "Must contain only letters",
}

func validationMessage(e validator.FieldError) string {
	if msg, ok := plainTagMessages[e.Tag()]; ok {
		return msg
	}

	switch e.Tag() {
	case "min":
		return boundMessage("Must be at least ", e)
	case "max":
		return boundMessage("Must be at most ", e)
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "lt":
		return "Must be less than " + e.Param()
	default:
		return "Invalid value"
	}
}

// boundMessage appends "characters" for string fields, where min/max mean
// length rather than magnitude.
func boundMessage(prefix string, e validator.FieldError) string {
	if e.Type().Kind() == reflect.String {
		return prefix + e.Param() + " characters"
	}
	return prefix + e.Param()
}
