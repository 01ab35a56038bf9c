package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flagforge/flagforge/pkg/model"
)

// ErrNoIntegration is returned when a proposal is requested but no git
// integration is configured for the tenant.
var ErrNoIntegration = errors.New("no git integration configured")

// ValidationError carries the invariant violations of a rejected flag
// configuration.
type ValidationError struct {
	Key        string
	Violations []model.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("flag %q is not well-formed: %s", e.Key, strings.Join(msgs, "; "))
}

// NotFoundError names the missing project, flag or integration.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// ConflictError reports a create on an existing key or a rename collision.
type ConflictError struct {
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("flag %q: %s", e.Key, e.Reason)
}
