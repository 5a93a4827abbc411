// services/errors.go
package services

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
)

// Relay rejections. Validation errors are the client's fault and never
// retried; ledger errors may be transient but are not retried either.
var (
	ErrInvalidTransaction    = errors.New("invalid transaction")
	ErrUnauthorizedFeePayer  = errors.New("unauthorized fee payer")
	ErrDisallowedProgram     = errors.New("disallowed program")
	ErrDisallowedInstruction = errors.New("disallowed instruction")
	ErrSubmissionFailed      = errors.New("transaction submission failed")
	ErrConfirmationFailed    = errors.New("transaction confirmation failed")
)

// StatusCode maps a relay error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.Is(err, ErrInvalidTransaction):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorizedFeePayer),
		errors.Is(err, ErrDisallowedProgram),
		errors.Is(err, ErrDisallowedInstruction):
		return fiber.StatusForbidden
	}
	return fiber.StatusInternalServerError
}

// PublicMessage is the reason string a client sees. Rejections carry their
// detail; ledger failures are collapsed so RPC internals do not leak.
func PublicMessage(err error) string {
	switch {
	case StatusCode(err) < fiber.StatusInternalServerError:
		return err.Error()
	case errors.Is(err, ErrSubmissionFailed):
		return ErrSubmissionFailed.Error()
	case errors.Is(err, ErrConfirmationFailed):
		return ErrConfirmationFailed.Error()
	}
	return "internal error"
}
