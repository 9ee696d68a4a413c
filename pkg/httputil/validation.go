package httputil

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/brightdesk/crm-backend/pkg/errors"
	"github.com/brightdesk/crm-backend/pkg/i18n"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names so details match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate validates a struct using go-playground/validator
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.BadRequest(err.Error())
	}

	details := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		details[e.Field()] = formatValidationError(e)
	}

	return errors.Validation(details)
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "email", "min", "max", "uuid", "oneof", "gte", "lte", "len", "url", "hexcolor":
		return i18n.T("validation."+e.Tag(), map[string]string{"param": e.Param()})
	default:
		return i18n.T("validation.invalid")
	}
}

// RegisterCustomValidation registers a custom validation function
func RegisterCustomValidation(tag string, fn validator.Func) error {
	return validate.RegisterValidation(tag, fn)
}
