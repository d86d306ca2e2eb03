package mint

import "errors"

// Sentinel errors for the Verify sequence's client-facing rejections. Each
// is deliberately distinct so the Challenge/Verify Flow can map it to the
// right HTTP disposition without parsing error strings.
var (
	// ErrCredentialNotFound means no ledger entry exists for the
	// presented credential's identity digest.
	ErrCredentialNotFound = errors.New("LSAT expired")

	// ErrInvalidCredential means the macaroon's signature didn't
	// validate under the recomputed key, or an unrecognized identifier
	// version was presented.
	ErrInvalidCredential = errors.New("LSAT incorrect")

	// ErrInvoiceNotSettled means the bound invoice has not reached the
	// Settled state.
	ErrInvoiceNotSettled = errors.New("invoice not settled")

	// ErrPreimageMismatch means the presented preimage does not hash to
	// the identity's payment hash.
	ErrPreimageMismatch = errors.New("preimage does not match payment hash")

	// ErrConstraintViolated covers an expired time caveat or a path
	// caveat that doesn't match the requested backend.
	ErrConstraintViolated = errors.New("credential constraint violated")

	// ErrQuotaExhausted means the credential's remaining quota is
	// smaller than the backend's price.
	ErrQuotaExhausted = errors.New("quota exhausted")
)
