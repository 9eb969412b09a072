package pool

import "fmt"

// Key identifies a tenant's sandbox slot: one (user, project) pair maps to at
// most one live sandbox. Keys compare by value and are safe map keys.
type Key struct {
	UserID    string
	ProjectID string
}

// NewKey validates both identifiers and builds a Key. Identifiers must be
// non-empty, at most maxLen characters, and restricted to [A-Za-z0-9._-] so a
// tenant cannot inject into another tenant's cache namespace.
func NewKey(userID, projectID string, maxLen int) (Key, error) {
	if err := validateID("user_id", userID, maxLen); err != nil {
		return Key{}, err
	}
	if err := validateID("project_id", projectID, maxLen); err != nil {
		return Key{}, err
	}
	return Key{UserID: userID, ProjectID: projectID}, nil
}

func validateID(field, value string, maxLen int) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must be a non-empty string"}
	}
	if len(value) > maxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("exceeds %d characters", maxLen)}
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
		default:
			return &ValidationError{Field: field, Reason: fmt.Sprintf("contains disallowed character %q", r)}
		}
	}
	return nil
}

// CacheKey derives the distributed cache key for this slot.
func (k Key) CacheKey() string {
	return "sandbox:" + k.UserID + ":" + k.ProjectID
}

func (k Key) String() string {
	return k.UserID + "/" + k.ProjectID
}
