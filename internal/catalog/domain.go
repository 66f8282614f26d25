package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/gatehouse-io/gatehouse/internal/shared"
)

// Wildcard matches any value in the resource-type or action slot of a code.
const Wildcard = "*"

// Permission is one entry of the static permission vocabulary. Codes are
// unique and immutable once referenced by a grant; ResourceType and Action
// are denormalized halves of Code kept for query convenience.
type Permission struct {
	ID           int64
	Code         string
	Name         string
	Description  string
	ResourceType string
	Action       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ResolveCode composes a permission code from its parts after validating them.
func ResolveCode(resourceType, action string) (string, error) {
	if err := validateSlot(resourceType); err != nil {
		return "", fmt.Errorf("catalog: resource type %q: %w", resourceType, err)
	}
	if err := validateSlot(action); err != nil {
		return "", fmt.Errorf("catalog: action %q: %w", action, err)
	}
	return resourceType + "." + action, nil
}

// SplitCode breaks a code into its resource-type and action slots.
func SplitCode(code string) (resourceType, action string, err error) {
	parts := strings.Split(code, ".")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("catalog: code %q: %w", code, shared.ErrValidation)
	}
	if err := validateSlot(parts[0]); err != nil {
		return "", "", fmt.Errorf("catalog: code %q: %w", code, err)
	}
	if err := validateSlot(parts[1]); err != nil {
		return "", "", fmt.Errorf("catalog: code %q: %w", code, err)
	}
	return parts[0], parts[1], nil
}

func validateSlot(value string) error {
	if value == "" {
		return shared.ErrValidation
	}
	if value == Wildcard {
		return nil
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return shared.ErrValidation
		}
	}
	return nil
}
