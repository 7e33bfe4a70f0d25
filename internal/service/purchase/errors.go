package purchase

import "errors"

var (
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrDuplicateAdmission means the listing already has a live queue
	// entry. Admission is idempotent per fingerprint.
	ErrDuplicateAdmission = errors.New("listing already queued")

	// ErrAlreadyReserved means another collaborator claimed the entry
	// first.
	ErrAlreadyReserved = errors.New("entry already reserved")

	ErrInvalidTransition = errors.New("invalid queue transition")
)
