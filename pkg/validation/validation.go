package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

var (
	reBarNum = regexp.MustCompile(`^[A-Za-z0-9 /-]{3,40}$`)         // e.g. D/1234/2019
	rePhone  = regexp.MustCompile(`^\+?[0-9][0-9 \-]{5,18}[0-9]$`) // 7 to 20 chars, digits first and last
)

// Custom string rules. Blank values pass so omitempty/required stay in charge.
var rules = map[string]func(string) bool{
	"barnum": reBarNum.MatchString,
	"phone":  rePhone.MatchString,
	"isodate": func(s string) bool {
		_, err := time.Parse(time.DateOnly, s)
		return err == nil
	},
}

// Fixed messages per tag; parameterized ones are built in message().
var messages = map[string]string{
	"required": "This field is required",
	"email":    "Invalid email format",
	"oneof":    "Value is not allowed",
	"uuid":     "Invalid UUID format",
	"uuid4":    "Invalid UUID format",
	"barnum":   "Invalid bar number format",
	"phone":    "Invalid phone number",
	"isodate":  "Invalid date (use YYYY-MM-DD)",
}

func newValidator() *validator.Validate {
	val := validator.New()

	// Errors are keyed by the JSON name the client sent.
	val.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	for tag, ok := range rules {
		_ = val.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return s == "" || ok(s)
		})
	}
	return val
}

// Validate returns field -> messages for a failing struct, nil when it passes.
// The error is only set when s cannot be validated at all.
func Validate(s any) (map[string][]string, error) {
	err := v.Struct(s)
	if err == nil {
		return nil, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, err
	}
	out := make(map[string][]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = append(out[fe.Field()], message(fe))
	}
	return out, nil
}

func message(fe validator.FieldError) string {
	if m, ok := messages[fe.Tag()]; ok {
		return m
	}
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("Must be at least %s%s", fe.Param(), unit)
	case "max":
		return fmt.Sprintf("Must be at most %s%s", fe.Param(), unit)
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	case "gt":
		return "Must be greater than " + fe.Param()
	}
	return fe.Error()
}
