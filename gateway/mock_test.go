package gateway

import (
	"context"
	"sync"

	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/invoices"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
)

// mockLightningClient is a minimal stand-in for lndclient.LightningClient,
// implementing only the methods the gateway calls.
type mockLightningClient struct {
	lndclient.LightningClient

	mu       sync.Mutex
	invoices map[lntypes.Hash]*lndclient.Invoice

	updates chan *lndclient.Invoice
	errs    chan error
}

func newMockLightningClient() *mockLightningClient {
	return &mockLightningClient{
		invoices: make(map[lntypes.Hash]*lndclient.Invoice),
		updates:  make(chan *lndclient.Invoice, 8),
		errs:     make(chan error, 1),
	}
}

func (m *mockLightningClient) AddInvoice(_ context.Context,
	in *invoicesrpc.AddInvoiceData) (lntypes.Hash, string, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var hash lntypes.Hash
	hash[0] = byte(len(m.invoices) + 1)

	m.invoices[hash] = &lndclient.Invoice{
		Hash:  hash,
		State: invoices.ContractOpen,
	}

	return hash, "lntb1payreq", nil
}

func (m *mockLightningClient) LookupInvoice(_ context.Context,
	hash lntypes.Hash) (*lndclient.Invoice, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.invoices[hash], nil
}

func (m *mockLightningClient) GetInfo(context.Context) (*lndclient.Info,
	error) {

	return &lndclient.Info{
		IdentityPubkey: [33]byte{1, 2, 3},
		Alias:          "test-node",
		BlockHeight:    100,
	}, nil
}

func (m *mockLightningClient) SubscribeInvoices(ctx context.Context,
	_ lndclient.InvoiceSubscriptionRequest) (<-chan *lndclient.Invoice,
	<-chan error, error) {

	return m.updates, m.errs, nil
}

func (m *mockLightningClient) DecodePaymentRequest(_ context.Context,
	_ string) (*lndclient.PaymentRequest, error) {

	return &lndclient.PaymentRequest{}, nil
}

func (m *mockLightningClient) settle(hash lntypes.Hash) {
	m.mu.Lock()
	m.invoices[hash] = &lndclient.Invoice{
		Hash:  hash,
		State: invoices.ContractSettled,
	}
	m.mu.Unlock()

	m.updates <- &lndclient.Invoice{Hash: hash, State: invoices.ContractSettled}
}
