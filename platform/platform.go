// Package platform is the handle a service uses to call back into the
// security platform on behalf of one organization.
package platform

import (
	"context"
	"errors"
)

// DefaultURL is the platform's public REST endpoint.
const DefaultURL = "https://api.limacharlie.io/v1"

var (
	// ErrInvalidToken is returned when the per-call JWT cannot be read.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the per-call JWT is already expired.
	ErrExpiredToken = errors.New("token expired")
)

// API is the subset of the platform's REST surface a service uses. A handle
// is bound to one organization, one credential and one investigation id for
// the duration of a single envelope.
type API interface {
	// OID returns the organization the handle acts for.
	OID() string

	// InvestigationID returns the tracing identifier attached to commands
	// issued without an explicit one.
	InvestigationID() string

	// Task sends tasks to a sensor. An empty investigationID uses the
	// handle's own.
	Task(ctx context.Context, sid string, tasks []string, investigationID string) error

	// PushRule creates or replaces a detection & response rule.
	PushRule(ctx context.Context, rule Rule) error

	// DeleteRule removes a detection & response rule.
	DeleteRule(ctx context.Context, name, namespace string) error
}
