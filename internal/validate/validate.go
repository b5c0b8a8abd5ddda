// Package validate performs structural validation of submitted resource forms
// before any quota or network work happens.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	v *validator.Validate

	// respathPatterns maps the respath tag parameter to the expected remote
	// resource path shape, e.g. respath=properties matches "properties/123".
	respathPatterns = map[string]*regexp.Regexp{
		"accounts":   regexp.MustCompile(`^accounts/\d+$`),
		"properties": regexp.MustCompile(`^properties/\d+$`),
	}
)

func init() {
	v = validator.New()
	_ = v.RegisterValidation("respath", validateResourcePath)
}

// validateResourcePath checks that a field holds a well-formed remote resource
// path for the collection named in the tag parameter.
func validateResourcePath(fl validator.FieldLevel) bool {
	pattern, ok := respathPatterns[fl.Param()]
	if !ok {
		return false
	}
	return pattern.MatchString(fl.Field().String())
}

// FieldError describes one failed constraint on one field path.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is the set of constraint violations for a single form.
type FieldErrors []FieldError

// Error joins all field messages into one per-item message.
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, e := range fe {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return strings.Join(parts, "; ")
}

// Struct validates a form against its declared constraints. Returns nil on
// success, or FieldErrors listing every violated field path. Purely
// structural: no network calls, no quota consumption.
func Struct(form any) FieldErrors {
	err := v.Struct(form)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{{Field: "form", Message: err.Error()}}
	}

	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fieldPath(fe),
			Message: constraintMessage(fe),
		})
	}
	return out
}

// fieldPath strips the leading struct type from the validator namespace so the
// caller sees "Property" rather than "PropertyForm.Property".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// constraintMessage renders a human-readable message for a failed tag.
func constraintMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "respath":
		return fmt.Sprintf("must be a resource path like %q", fe.Param()+"/123")
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "url":
		return "must be a valid URL"
	case "numeric":
		return "must be numeric"
	default:
		return fmt.Sprintf("failed %s constraint", fe.Tag())
	}
}
