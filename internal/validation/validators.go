// Package validation registers the domain-specific binding rules used by request structs:
//
//	city_code    ICAO/IATA style station code, e.g. KTYS
//	tail_number  aircraft registration, e.g. N123AB or G-ABCD
//	ata_code     ATA 100 chapter, optionally with section and subject, e.g. 32 or 32-10-05
//	nonneg       decimal.Decimal (or pointer) that is zero or positive
//
// RegisterGinValidators installs them on gin's default validator so `binding:"..."` tags
// can use them.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	cityCodePattern   = regexp.MustCompile(`^[A-Z0-9]{3,4}$`)
	tailNumberPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}-?[A-Z0-9]{1,6}$`)
	ataCodePattern    = regexp.MustCompile(`^\d{2}(-\d{2}){0,2}$`)
)

var cityCode validator.Func = func(fl validator.FieldLevel) bool {
	return cityCodePattern.MatchString(fl.Field().String())
}

var tailNumber validator.Func = func(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	return len(s) <= 10 && tailNumberPattern.MatchString(s)
}

var ataCode validator.Func = func(fl validator.FieldLevel) bool {
	return ataCodePattern.MatchString(fl.Field().String())
}

// nonNegative sees decimals as float64 through decimalValue
var nonNegative validator.Func = func(fl validator.FieldLevel) bool {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		return fl.Field().Float() >= 0
	}
	return false
}

// decimalValue lets struct-typed decimals reach field-level rules
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}

// Register adds the custom rules to v
func Register(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"city_code":   cityCode,
		"tail_number": tailNumber,
		"ata_code":    ataCode,
		"nonneg":      nonNegative,
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	// Report JSON field names rather than Go field names
	v.RegisterTagNameFunc(jsonFieldName)
	return nil
}

// RegisterGinValidators installs the custom rules on gin's binding validator
func RegisterGinValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator is not go-playground/validator")
	}
	return Register(v)
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

// FieldErrors converts a binding error into field → message pairs. ok is false when err is
// not a validation error (for example malformed JSON).
func FieldErrors(err error) (map[string]string, bool) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, false
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = message(fe)
	}
	return out, true
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "city_code":
		return "must be a 3 or 4 character station code"
	case "tail_number":
		return "must be an aircraft registration such as N123AB"
	case "ata_code":
		return "must be an ATA code such as 32 or 32-10-05"
	case "nonneg":
		return "must not be negative"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
