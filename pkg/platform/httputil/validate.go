package httputil

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator"

	dErrors "vcissuer/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, key := range []string{"json", "form"} {
			name := strings.Split(f.Tag.Get(key), ",")[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ValidateStruct checks v's validate tags. The first violation is reported as
// a validation error naming the wire field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return dErrors.New(dErrors.CodeValidation, describe(fieldErrs[0]))
	}
	return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "url":
		return fe.Field() + " must be a url"
	default:
		return fe.Field() + " is invalid"
	}
}
