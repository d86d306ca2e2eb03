// Package mint implements the Credential Engine: minting fresh LSAT
// challenges and verifying credentials presented on subsequent requests.
package mint

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/lightninglabs/lsatproxy/backend"
	"github.com/lightninglabs/lsatproxy/gateway"
	"github.com/lightninglabs/lsatproxy/l402"
	"github.com/lightninglabs/lsatproxy/quota"
	"github.com/lightningnetwork/lnd/invoices"
	"github.com/lightningnetwork/lnd/lntypes"
	"gopkg.in/macaroon.v2"
)

const (
	// invoiceMemo is the fixed memo attached to every minted invoice.
	invoiceMemo = "LSAT payment"

	// invoiceExpirySeconds is how long the underlying invoice stays
	// payable, distinct from the macaroon's payment-deadline caveat.
	invoiceExpirySeconds = 600

	// paymentDeadline is the "redeem by" window attached as a time<
	// caveat, measured from mint time.
	paymentDeadline = 120 * time.Second
)

// Challenge is the result of a successful mint: the credential to present
// to the client and the invoice it must pay to redeem it.
type Challenge struct {
	MacaroonBase64 string
	Invoice        string
}

// WWWAuthenticate renders the challenge as the value of the
// WWW-Authenticate header returned with a 402 response.
func (c *Challenge) WWWAuthenticate() string {
	return fmt.Sprintf(
		`LSAT macaroon="%s" invoice="%s"`, c.MacaroonBase64, c.Invoice,
	)
}

// Engine is the Credential Engine: it mints challenges against a Node
// Gateway and Quota Store, and verifies credentials presented against them.
type Engine struct {
	gw    gateway.Gateway
	store *quota.Store
}

// New constructs an Engine around the given gateway and quota store.
func New(gw gateway.Gateway, store *quota.Store) *Engine {
	return &Engine{gw: gw, store: store}
}

// Mint requests an invoice, derives a fresh identity and signing secret,
// persists the initial quota entry, and returns a signed, caveat-bound
// credential.
func (e *Engine) Mint(ctx context.Context, b backend.Descriptor,
	bodyDigest [32]byte) (*Challenge, error) {

	charge := b.Charge()

	payReq, paymentHash, err := e.gw.AddInvoice(
		ctx, int64(charge), invoiceMemo, invoiceExpirySeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to obtain invoice: %w", err)
	}

	var tokenID l402.TokenID
	if _, err := rand.Read(tokenID[:]); err != nil {
		return nil, fmt.Errorf("unable to generate token id: %w", err)
	}

	id := &l402.Identifier{
		Version:     l402.LatestVersion,
		PaymentHash: paymentHash,
		TokenID:     tokenID,
	}

	digest, err := l402.IdentityDigest(id)
	if err != nil {
		return nil, fmt.Errorf("unable to compute identity digest: %w",
			err)
	}

	err = e.store.Put(quota.Entry{
		ID:     l402.NamespacedHex(digest),
		Secret: digest,
		Quota:  charge,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to persist quota entry: %w", err)
	}

	cred, err := l402.New(id, digest)
	if err != nil {
		return nil, fmt.Errorf("unable to mint credential: %w", err)
	}

	deadline := time.Now().Add(paymentDeadline)
	if err := cred.AddCaveat(l402.NewTimeCaveat(deadline)); err != nil {
		return nil, err
	}
	if err := cred.AddCaveat(l402.NewPathCaveat(b.Path)); err != nil {
		return nil, err
	}
	if err := cred.AddCaveat(l402.NewPayloadCaveat(bodyDigest)); err != nil {
		return nil, err
	}

	macBase64, err := cred.Serialize()
	if err != nil {
		return nil, fmt.Errorf("unable to serialize credential: %w", err)
	}

	log.Debugf("minted credential for backend=%v charge=%v msat",
		b.Path, charge)

	return &Challenge{MacaroonBase64: macBase64, Invoice: payReq}, nil
}

// Verify authenticates a presented credential against the quota store and
// request context, and atomically charges the backend's price against its
// remaining quota. On success it returns the quota remaining after the
// charge.
func (e *Engine) Verify(ctx context.Context, mac *macaroon.Macaroon,
	preimage lntypes.Preimage, b backend.Descriptor,
	bodyDigest [32]byte) (uint64, error) {

	cred, err := l402.FromMacaroon(mac)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	digest, err := l402.IdentityDigest(cred.Id)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	key := l402.NamespacedHex(digest)

	entry, err := e.store.Get(key)
	switch {
	case err == quota.ErrNotFound:
		return 0, ErrCredentialNotFound
	case err != nil:
		return 0, fmt.Errorf("unable to read quota entry: %w", err)
	}

	if subtle.ConstantTimeCompare(digest[:], entry.Secret[:]) != 1 {
		return 0, ErrInvalidCredential
	}

	caveats, err := cred.VerifySignature(digest)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	if err := l402.VerifyCaveats(caveats, b.Path, time.Now()); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConstraintViolated, err)
	}

	presentedHash := preimage.Hash()
	if subtle.ConstantTimeCompare(
		presentedHash[:], cred.Id.PaymentHash[:],
	) != 1 {
		return 0, ErrPreimageMismatch
	}

	inv, err := e.gw.LookupInvoice(ctx, cred.Id.PaymentHash)
	if err != nil {
		return 0, fmt.Errorf("unable to look up invoice: %w", err)
	}
	if inv.State != invoices.ContractSettled {
		return 0, ErrInvoiceNotSettled
	}

	remaining, err := e.store.Charge(key, uint64(b.PriceMsat))
	switch {
	case err == quota.ErrInsufficientQuota:
		return 0, ErrQuotaExhausted
	case err == quota.ErrNotFound:
		return 0, ErrCredentialNotFound
	case err != nil:
		return 0, fmt.Errorf("unable to charge quota: %w", err)
	}

	if remaining == 0 {
		if err := e.store.Delete(key); err != nil {
			return 0, fmt.Errorf("unable to delete exhausted "+
				"entry: %w", err)
		}
	}

	log.Debugf("verified credential id=%v remaining=%v msat",
		cred.Id.TokenID, remaining)

	return remaining, nil
}
