package repository

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrNoIdentityAvailable = errors.New("no identity available")
	ErrDuplicateAdmission  = errors.New("fingerprint already queued")
	ErrAlreadyReserved     = errors.New("entry already reserved")
	ErrInvalidTransition   = errors.New("invalid queue transition")
)
