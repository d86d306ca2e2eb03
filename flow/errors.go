package flow

import (
	"errors"
	"net/http"

	"github.com/lightninglabs/lsatproxy/mint"
)

// clientRejection renders a mint.Verify (or request-parsing) failure to the
// HTTP status and short message clients expect for that failure. Anything
// it doesn't recognize is treated as a server-side failure.
func clientRejection(err error) (int, string) {
	switch {
	case errors.Is(err, mint.ErrCredentialNotFound):
		return http.StatusBadRequest, "LSAT expired"

	case errors.Is(err, mint.ErrInvalidCredential):
		return http.StatusBadRequest, "LSAT incorrect"

	case errors.Is(err, mint.ErrInvoiceNotSettled):
		return http.StatusBadRequest, "invoice not settled"

	case errors.Is(err, mint.ErrPreimageMismatch):
		return http.StatusBadRequest, "preimage does not match"

	case errors.Is(err, mint.ErrConstraintViolated):
		return http.StatusBadRequest, "credential constraint violated"

	case errors.Is(err, mint.ErrQuotaExhausted):
		return http.StatusBadRequest, "quota exhausted"

	default:
		return http.StatusInternalServerError, "UNHANDLED_REJECTION"
	}
}
