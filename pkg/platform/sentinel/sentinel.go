package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about shared state, not validation failures:
// - ErrNotFound: account or nullifier has no binding / record
// - ErrConflict: the account already has a binding / record in the way
// - ErrTaken: the nullifier is bound to some account already
// - ErrInsufficient: balance too small for the requested debit
// - ErrCapExceeded: mutation would push issuance past the global cap
// - ErrUnavailable: backing store temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrTaken        = errors.New("taken")
	ErrInsufficient = errors.New("insufficient balance")
	ErrCapExceeded  = errors.New("cap exceeded")
	ErrUnavailable  = errors.New("unavailable")
)
