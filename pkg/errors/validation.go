package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance; it caches struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct checks the `validate` struct tags of v and returns an
// error with the given code describing every failed field.
func ValidateStruct(code Code, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Wrap(code, err, "validate")
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = formatFieldError(fe)
	}
	return New(code, "%s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "gt", "gte", "lt", "lte", "min", "max":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ValidatePath validates a user-supplied file path (graph, layout or config file).
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 1024 characters
//   - No null bytes or control characters
//   - Extension must be one of allowedExt when allowedExt is non-empty
func ValidatePath(path string, allowedExt ...string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 1024
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if len(allowedExt) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range allowedExt {
		if ext == want {
			return nil
		}
	}
	return New(ErrCodeInvalidFormat, "unsupported file extension %q (want one of %s)", ext, strings.Join(allowedExt, ", "))
}

// sessionIDRegex matches canonical UUID strings.
var sessionIDRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ValidateSessionID validates a simulation session identifier taken from a URL.
func ValidateSessionID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "session id cannot be empty")
	}
	if !sessionIDRegex.MatchString(strings.ToLower(id)) {
		return New(ErrCodeInvalidInput, "invalid session id: %q", id)
	}
	return nil
}
