package rotation

import "errors"

var (
	// ErrNoIdentityAvailable means every identity for the (platform,
	// purpose) pair is cooling down, disabled or checked out. The cycle
	// for that platform is skipped, not failed.
	ErrNoIdentityAvailable = errors.New("no identity available")

	ErrIdentityNotFound = errors.New("identity not found")
)
