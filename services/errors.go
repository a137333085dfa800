package services

import "errors"

// Domain errors. Callers match them with errors.Is; the HTTP layer maps each
// to a status code.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrTeacherNotBookable     = errors.New("teacher is not bookable")
	ErrSlotUnavailable        = errors.New("slot unavailable")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrAlreadySubmitted       = errors.New("application already submitted")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrGatewayTimeout         = errors.New("payment gateway timeout")
	ErrAlreadyCaptured        = errors.New("payment already captured")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAlreadyExists          = errors.New("already exists")
)

// Returned by Store implementations.
var (
	ErrDuplicate    = errors.New("duplicate record")
	ErrStaleVersion = errors.New("stale version")
)
