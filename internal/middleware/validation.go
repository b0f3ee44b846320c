package middleware

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "crunchcli/internal/errors"
	"crunchcli/pkg/contracts/domain"
)

// defaultMaxBodySize bounds JSON request bodies.
const defaultMaxBodySize = 1 << 20

// RequestValidator decodes JSON bodies and checks them against their
// `validate` struct tags.
type RequestValidator struct {
	validator   *validator.Validate
	logger      *slog.Logger
	maxBodySize int64
}

// NewRequestValidator creates a validator with the "unit" and "label" tags
// registered and JSON field names in its messages.
func NewRequestValidator(logger *slog.Logger) *RequestValidator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("unit", isUnit)
	_ = v.RegisterValidation("label", isLabel)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &RequestValidator{
		validator:   v,
		logger:      logger.With(slog.String("component", "request_validator")),
		maxBodySize: defaultMaxBodySize,
	}
}

// Decode reads the JSON body of r into v and validates it. The returned
// error is an *errors.APIError ready for the error handler.
func (m *RequestValidator) Decode(w http.ResponseWriter, r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return apierrors.NewWithDetails(http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
			"Unsupported content type", map[string]any{"content_type": ct})
	}

	r.Body = http.MaxBytesReader(w, r.Body, m.maxBodySize)
	if err := render.DecodeJSON(r.Body, v); err != nil {
		m.logger.DebugContext(r.Context(), "invalid request body", slog.String("error", err.Error()))
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return apierrors.NewWithDetails(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				"Request body exceeds maximum allowed size", map[string]any{"max_size": m.maxBodySize})
		}
		return apierrors.InvalidRequestWithError(err)
	}
	return m.Struct(v)
}

// Struct validates v and converts failures to a VALIDATION_FAILED error.
func (m *RequestValidator) Struct(v any) error {
	err := m.validator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "unit":
		return fmt.Sprintf("%s must be a known unit", field)
	case "label":
		return fmt.Sprintf("%s must be a measurement type such as Voltage or Current", field)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isUnit accepts the empty string and any unit ParseUnit knows.
func isUnit(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return true
	}
	_, ok := domain.ParseUnit(s)
	return ok
}

// isLabel accepts a single word of letters, the shape of a measurement type.
func isLabel(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 64 {
		return false
	}
	for _, ch := range s {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z')) {
			return false
		}
	}
	return true
}

// QueryParamValidator validates query parameters
type QueryParamValidator struct {
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a new query parameter validator
func NewQueryParamValidator(errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateInt validates an integer query parameter. On failure it writes the
// error response and returns false.
func (v *QueryParamValidator) ValidateInt(w http.ResponseWriter, r *http.Request, param string, min, max int, defaultValue int) (int, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, fmt.Sprintf("%s must be a valid integer", param)))
		return 0, false
	}
	if intValue < min || intValue > max {
		v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, fmt.Sprintf("%s must be between %d and %d", param, min, max)))
		return 0, false
	}
	return intValue, true
}

// ValidateEnum validates an enum query parameter
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, defaultValue string) (string, bool) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, true
	}
	for _, a := range allowed {
		if value == a {
			return value, true
		}
	}
	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param, fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", "))))
	return "", false
}
