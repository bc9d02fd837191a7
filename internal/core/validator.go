package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"coworkgate/internal/types"
)

// accessCodePattern bounds what the kiosk may submit as an access code.
var accessCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,32}$`)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects field errors for a request.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid reports whether no field failed.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the API's custom tags and
// reports fields by their JSON names.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the access_code tag for
// kiosk access codes.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "access_code", func(fl validator.FieldLevel) bool {
		return accessCodePattern.MatchString(fl.Field().String())
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("core: register validation %q: %v", tag, err))
	}
}

// Check runs struct validation and returns per-field results.
func (v *Validator) Check(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("struct validation misuse", "error", err)
		return ValidationResult{Errors: []ValidationError{{Field: "", Code: "invalid", Message: err.Error()}}}
	}

	result := ValidationResult{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fieldPath(fe),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return result
}

// ValidateStruct validates s and returns nil or a 400 AppError. Missing
// required fields map to validation_missing_required_field with the field
// list in details; any other rule failure maps to validation_invalid_field
// with the per-field errors in details.
func (v *Validator) ValidateStruct(s any) error {
	result := v.Check(s)
	if result.IsValid() {
		return nil
	}

	var missing []string
	onlyRequired := true
	for _, e := range result.Errors {
		if strings.HasPrefix(e.Code, "required") {
			missing = append(missing, e.Field)
		} else {
			onlyRequired = false
		}
	}

	if onlyRequired {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"missing required fields: "+strings.Join(missing, ", "),
			nil,
			map[string]any{"fields": missing},
		)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidField,
		result.Errors[0].Message,
		nil,
		map[string]any{"errors": result.Errors},
	)
}

// fieldPath drops the root struct name: "req.data.id" becomes "data.id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "required_without", "required_if":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "access_code":
		return field + " is not a valid access code"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
