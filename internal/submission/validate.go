package submission

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	ReasonMissingFields = "Missing required fields"
	ReasonInvalidEmail  = "Invalid email address"
)

// emailPattern accepts something@something.something.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("mailaddr", func(fl validator.FieldLevel) bool {
		return isEmail(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// isEmail reports whether s has the basic local@domain.tld shape.
func isEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidationError describes why a submission was refused. Reason is safe to
// return to the client.
type ValidationError struct {
	Reason string
	Fields []string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks the required and email rules declared on v's struct tags.
// Missing fields take precedence over a malformed address.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	ve := &ValidationError{Reason: ReasonInvalidEmail}
	for _, fe := range fieldErrs {
		ve.Fields = append(ve.Fields, fe.Field())
		if fe.Tag() == "required" {
			ve.Reason = ReasonMissingFields
		}
	}
	return ve
}
