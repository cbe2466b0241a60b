// Package validator checks request structs with go-playground/validator and
// reports failures by JSON path, e.g. "lines[1].quantity".
package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	// Decimals are validated in their string form; as structs their tags
	// would be skipped.
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		return f.Interface().(decimal.Decimal).String()
	}, decimal.Decimal{})
	_ = v.RegisterValidation("money", isMoney)
	return v
}

// isMoney accepts a non-negative amount with at most two fractional digits.
func isMoney(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative() && d.Equal(d.Truncate(2))
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "":
		return f.Name
	case "-":
		return "-"
	}
	return name
}

// RegisterEnum adds tag as an alias for oneof over values. It must be called
// before the first Validate, typically from an init function.
func RegisterEnum[T ~string](tag string, values ...T) {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	validate.RegisterAlias(tag, "oneof="+strings.Join(names, " "))
}

// Validate runs the struct's validate tags.
func Validate(s any) error {
	err := validate.Struct(s)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return &ValidationError{Errors: fieldErrs}
	}
	return err
}

// ValidationError lists every field that failed.
type ValidationError struct {
	Errors validator.ValidationErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, "field '"+fieldPath(fe)+"' "+describe(fe))
	}
	return strings.Join(parts, "; ")
}

// Fields maps each failing path to its message.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Errors))
	for _, fe := range e.Errors {
		out[fieldPath(fe)] = describe(fe)
	}
	return out
}

// First returns the first failure, which is what the error envelope reports.
func (e *ValidationError) First() (field string, value any, message string) {
	if len(e.Errors) == 0 {
		return "", nil, ""
	}
	fe := e.Errors[0]
	return fieldPath(fe), fe.Value(), describe(fe)
}

// fieldPath strips the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	if _, rest, ok := strings.Cut(fe.Namespace(), "."); ok {
		return rest
	}
	return fe.Field()
}

var fixedMessages = map[string]string{
	"required": "is required",
	"email":    "must be a valid email address",
	"uuid":     "must be a valid UUID",
	"money":    "must be a non-negative amount with at most 2 decimal places",
}

func describe(fe validator.FieldError) string {
	if msg, ok := fixedMessages[fe.ActualTag()]; ok {
		return msg
	}
	unit := "characters"
	if k := fe.Kind(); k == reflect.Slice || k == reflect.Array {
		unit = "items"
	}
	switch fe.ActualTag() {
	case "min":
		return fmt.Sprintf("must contain at least %s %s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("must contain at most %s %s", fe.Param(), unit)
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return fmt.Sprintf("failed on '%s' validation", fe.Tag())
}

// DecodeAndValidate decodes the JSON body into dst and validates it.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return Validate(dst)
}
