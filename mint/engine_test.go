package mint

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lightninglabs/lsatproxy/backend"
	"github.com/lightninglabs/lsatproxy/gateway"
	"github.com/lightninglabs/lsatproxy/quota"
	"github.com/lightningnetwork/lnd/invoices"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
	"gopkg.in/macaroon.v2"
)

// mockGateway is an in-memory stand-in for gateway.Gateway:
// AddInvoice generates a real random preimage so tests can present it back
// through Verify, exactly as a settled payment would on a real node.
type mockGateway struct {
	mu        sync.Mutex
	states    map[lntypes.Hash]invoices.ContractState
	preimages map[lntypes.Hash]lntypes.Preimage
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		states:    make(map[lntypes.Hash]invoices.ContractState),
		preimages: make(map[lntypes.Hash]lntypes.Preimage),
	}
}

func (m *mockGateway) AddInvoice(_ context.Context, _ int64, _ string,
	_ int64) (string, lntypes.Hash, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var preimage lntypes.Preimage
	if _, err := rand.Read(preimage[:]); err != nil {
		return "", lntypes.Hash{}, err
	}
	hash := preimage.Hash()

	m.states[hash] = invoices.ContractOpen
	m.preimages[hash] = preimage

	return "lntb1payreq", hash, nil
}

func (m *mockGateway) LookupInvoice(_ context.Context,
	hash lntypes.Hash) (gateway.Invoice, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	return gateway.Invoice{PaymentHash: hash, State: m.states[hash]}, nil
}

func (m *mockGateway) GetInfo(context.Context) (gateway.NodeInfo, error) {
	return gateway.NodeInfo{Pubkey: "deadbeef"}, nil
}

func (m *mockGateway) DecodeInvoice(_ context.Context,
	_ string) (lntypes.Hash, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	for h := range m.states {
		return h, nil
	}
	return lntypes.Hash{}, nil
}

func (m *mockGateway) settle(hash lntypes.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[hash] = invoices.ContractSettled
}

func (m *mockGateway) preimageFor(hash lntypes.Hash) lntypes.Preimage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.preimages[hash]
}

// soleHash returns the payment hash of the single invoice a test has
// minted so far.
func (m *mockGateway) soleHash() lntypes.Hash {
	m.mu.Lock()
	defer m.mu.Unlock()

	for h := range m.states {
		return h
	}
	return lntypes.Hash{}
}

func newTestEngine(t *testing.T) (*Engine, *mockGateway, *quota.Store) {
	t.Helper()

	store, err := quota.NewStore(filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	gw := newMockGateway()

	return New(gw, store), gw, store
}

func testBackend() backend.Descriptor {
	return backend.Descriptor{
		Name:           "echo",
		Path:           "/echo",
		PriceMsat:      1000,
		BudgetMultiple: 3,
	}
}

func decodeMacaroon(t *testing.T, macBase64 string) *macaroon.Macaroon {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(macBase64)
	require.NoError(t, err)

	mac := &macaroon.Macaroon{}
	require.NoError(t, mac.UnmarshalBinary(raw))
	return mac
}

func TestMintGrantsChargeMultipliedQuota(t *testing.T) {
	t.Parallel()

	engine, _, store := newTestEngine(t)
	b := testBackend()

	var digest [32]byte
	challenge, err := engine.Mint(context.Background(), b, digest)
	require.NoError(t, err)
	require.NotEmpty(t, challenge.MacaroonBase64)
	require.Equal(t, "lntb1payreq", challenge.Invoice)

	mac := decodeMacaroon(t, challenge.MacaroonBase64)

	var total uint64
	require.NoError(t, store.ForEach(func(e quota.Entry) error {
		total = e.Quota
		return nil
	}))
	require.Equal(t, uint64(3000), total)
	require.NotEmpty(t, mac.Caveats())
}

func TestVerifyHappyPathAmortizesQuota(t *testing.T) {
	t.Parallel()

	engine, gw, _ := newTestEngine(t)
	b := testBackend()

	var digest [32]byte
	challenge, err := engine.Mint(context.Background(), b, digest)
	require.NoError(t, err)

	mac := decodeMacaroon(t, challenge.MacaroonBase64)

	hash := gw.soleHash()
	gw.settle(hash)
	preimage := gw.preimageFor(hash)

	remaining, err := engine.Verify(
		context.Background(), mac, preimage, b, digest,
	)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), remaining)

	remaining, err = engine.Verify(
		context.Background(), mac, preimage, b, digest,
	)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), remaining)

	remaining, err = engine.Verify(
		context.Background(), mac, preimage, b, digest,
	)
	require.NoError(t, err)
	require.Equal(t, uint64(0), remaining)

	_, err = engine.Verify(context.Background(), mac, preimage, b, digest)
	require.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestVerifyWrongPreimageRejected(t *testing.T) {
	t.Parallel()

	engine, gw, store := newTestEngine(t)
	b := testBackend()

	var digest [32]byte
	challenge, err := engine.Mint(context.Background(), b, digest)
	require.NoError(t, err)

	mac := decodeMacaroon(t, challenge.MacaroonBase64)

	hash := gw.soleHash()
	gw.settle(hash)

	var zero lntypes.Preimage

	_, err = engine.Verify(context.Background(), mac, zero, b, digest)
	require.ErrorIs(t, err, ErrPreimageMismatch)

	var total uint64
	require.NoError(t, store.ForEach(func(e quota.Entry) error {
		total = e.Quota
		return nil
	}))
	require.Equal(t, uint64(3000), total)
}

func TestVerifyUnsettledInvoiceRejected(t *testing.T) {
	t.Parallel()

	engine, gw, _ := newTestEngine(t)
	b := testBackend()

	var digest [32]byte
	challenge, err := engine.Mint(context.Background(), b, digest)
	require.NoError(t, err)

	mac := decodeMacaroon(t, challenge.MacaroonBase64)

	hash := gw.soleHash()
	preimage := gw.preimageFor(hash)

	_, err = engine.Verify(context.Background(), mac, preimage, b, digest)
	require.ErrorIs(t, err, ErrInvoiceNotSettled)
}

func TestVerifyWrongPathRejected(t *testing.T) {
	t.Parallel()

	engine, gw, _ := newTestEngine(t)
	b := testBackend()

	var digest [32]byte
	challenge, err := engine.Mint(context.Background(), b, digest)
	require.NoError(t, err)

	mac := decodeMacaroon(t, challenge.MacaroonBase64)

	hash := gw.soleHash()
	gw.settle(hash)
	preimage := gw.preimageFor(hash)

	other := b
	other.Path = "/other"

	_, err = engine.Verify(context.Background(), mac, preimage, other, digest)
	require.ErrorIs(t, err, ErrConstraintViolated)
}
