package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports bad tool arguments.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Args are the decoded JSON arguments of a tool call.
type Args map[string]any

func (a Args) has(name string) bool {
	value, ok := a[name]
	return ok && value != nil
}

func (a Args) requiredString(name string) (string, error) {
	value, err := a.optionalString(name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", invalid(name, "is required")
	}
	return value, nil
}

func (a Args) optionalString(name string) (string, error) {
	if !a.has(name) {
		return "", nil
	}
	value, ok := a[name].(string)
	if !ok {
		return "", invalid(name, "must be a string")
	}
	return value, nil
}

func (a Args) optionalInt(name string, fallback int) (int, error) {
	if !a.has(name) {
		return fallback, nil
	}
	switch value := a[name].(type) {
	case float64:
		if value != math.Trunc(value) {
			return 0, invalid(name, "must be an integer")
		}
		return int(value), nil
	case json.Number:
		n, err := strconv.Atoi(value.String())
		if err != nil {
			return 0, invalid(name, "must be an integer")
		}
		return n, nil
	case int:
		return value, nil
	default:
		return 0, invalid(name, "must be a number")
	}
}

func (a Args) optionalBool(name string, fallback bool) (bool, error) {
	if !a.has(name) {
		return fallback, nil
	}
	value, ok := a[name].(bool)
	if !ok {
		return false, invalid(name, "must be a boolean")
	}
	return value, nil
}

func maxLength(field, value string, limit int) error {
	if n := len([]rune(value)); n > limit {
		return invalid(field, "must be at most %d characters (got %d)", limit, n)
	}
	return nil
}
