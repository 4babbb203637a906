package replay

import "errors"

var (
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrViolations is returned when verification found broken invariants.
	ErrViolations = errors.New("replay verification failed")
)
