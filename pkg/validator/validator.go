// Package validator holds custom rules registered on gin's validator
// engine.
package validator

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var scopePattern = regexp.MustCompile(`^[a-z][a-z_]*:[a-z][a-z_]*$`)

// Scope accepts a space or comma separated list of resource:action
// entries, e.g. "prescriptions:read".
func Scope(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if raw == "" {
		return true
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !scopePattern.MatchString(p) {
			return false
		}
	}
	return true
}

// Rules maps tag names to their functions.
func Rules() map[string]validator.Func {
	return map[string]validator.Func{
		"scope": Scope,
	}
}
