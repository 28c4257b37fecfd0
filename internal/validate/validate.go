// Package validate classifies free-text replies against stage conditions.
//
// Matching is case-insensitive substring containment throughout; there is
// deliberately no natural-language understanding beyond that.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ingria/excursbot/internal/models"
)

// ErrUnknownConditionType indicates a caller contract violation: the
// condition carries a type this validator does not recognize.
var ErrUnknownConditionType = errors.New("unknown condition type")

// Validate reports whether text satisfies the condition. It has no side
// effects and never fails for a well-formed condition; an unrecognized
// condition type returns ErrUnknownConditionType rather than a silent
// default.
func Validate(text string, condition models.Condition) (bool, error) {
	switch condition.Type {
	case models.ConditionContainsAny:
		return containsAny(text, condition.Values), nil
	case models.ConditionContainsAll:
		return containsAll(text, condition.Values), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownConditionType, condition.Type)
	}
}

func containsAny(text string, values []string) bool {
	formatted := strings.ToLower(text)
	for _, val := range values {
		if strings.Contains(formatted, strings.ToLower(val)) {
			return true
		}
	}
	return false
}

func containsAll(text string, values []string) bool {
	formatted := strings.ToLower(text)
	for _, val := range values {
		if !strings.Contains(formatted, strings.ToLower(val)) {
			return false
		}
	}
	return true
}
