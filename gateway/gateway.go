// Package gateway abstracts the single Lightning node this proxy mints and
// settles invoices against.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lightninglabs/lndclient"
	"github.com/lightningnetwork/lnd/invoices"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

const (
	// defaultCallTimeout bounds a single request/response RPC to the
	// backing node.
	defaultCallTimeout = 10 * time.Second

	// cacheSize is the number of invoice lookups the gateway keeps
	// without going back to the node.
	cacheSize = 1024

	// cacheTTL bounds how long a cached invoice state is trusted before
	// the gateway falls back to a direct lookup.
	cacheTTL = 10 * time.Minute

	// reconnectDelay is how long the subscription loop sleeps after a
	// stream error before retrying. The loop never gives up.
	reconnectDelay = time.Second
)

// Invoice is the subset of node-reported invoice state the proxy cares
// about.
type Invoice struct {
	PaymentHash lntypes.Hash
	Preimage    *lntypes.Preimage
	State       invoices.ContractState
}

// NodeInfo is the identity summary reported by the supplemented /healthz
// liveness probe.
type NodeInfo struct {
	Pubkey      string
	Alias       string
	BlockHeight uint32
}

// Gateway mints invoices, reports their settlement state, and exposes node
// identity for the liveness probe.
type Gateway interface {
	// AddInvoice requests a new invoice for amtMsat millisatoshis with
	// the given memo and expiry, returning its BOLT-11 payment request
	// and payment hash.
	AddInvoice(ctx context.Context, amtMsat int64, memo string,
		expirySeconds int64) (string, lntypes.Hash, error)

	// LookupInvoice returns the current state of the invoice identified
	// by hash, preferring a cached value when one is fresh.
	LookupInvoice(ctx context.Context, hash lntypes.Hash) (Invoice, error)

	// GetInfo returns identity information about the backing node, used
	// by the liveness probe.
	GetInfo(ctx context.Context) (NodeInfo, error)

	// DecodeInvoice returns the payment hash encoded in a BOLT-11
	// payment request, used by the /invoice/status endpoint.
	DecodeInvoice(ctx context.Context, payReq string) (lntypes.Hash, error)
}

// LndGateway is a Gateway backed by lndclient, mirroring the reconnecting
// subscription design of the node-facing challenger in this codebase's
// lineage, generalized to track full invoice state rather than a fixed set
// of statuses.
type LndGateway struct {
	client lndclient.LightningClient

	cache *lru.LRU[lntypes.Hash, Invoice]

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewLndGateway constructs a Gateway around an already-connected lndclient
// LightningClient and starts its background subscription loop.
func NewLndGateway(client lndclient.LightningClient) *LndGateway {
	g := &LndGateway{
		client: client,
		cache:  lru.NewLRU[lntypes.Hash, Invoice](cacheSize, nil, cacheTTL),
		quit:   make(chan struct{}),
	}

	g.wg.Add(1)
	go g.subscriptionLoop()

	return g
}

// Stop terminates the background subscription loop.
func (g *LndGateway) Stop() {
	close(g.quit)
	g.wg.Wait()
}

// AddInvoice implements Gateway.
func (g *LndGateway) AddInvoice(ctx context.Context, amtMsat int64,
	memo string, expirySeconds int64) (string, lntypes.Hash, error) {

	ctxt, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	hash, payReq, err := g.client.AddInvoice(ctxt, &invoicesrpc.AddInvoiceData{
		Memo:   memo,
		Value:  lnwire.MilliSatoshi(amtMsat),
		Expiry: expirySeconds,
	})
	if err != nil {
		return "", lntypes.Hash{}, fmt.Errorf("unable to add "+
			"invoice: %w", err)
	}

	g.cache.Add(hash, Invoice{
		PaymentHash: hash,
		State:       invoices.ContractOpen,
	})

	return payReq, hash, nil
}

// LookupInvoice implements Gateway. A cache hit for a Settled invoice is
// trusted outright; anything else falls back to a direct node lookup so a
// stale cache entry never blocks a legitimately settled payment.
func (g *LndGateway) LookupInvoice(ctx context.Context,
	hash lntypes.Hash) (Invoice, error) {

	if cached, ok := g.cache.Get(hash); ok && cached.State == invoices.ContractSettled {
		return cached, nil
	}

	ctxt, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	inv, err := g.client.LookupInvoice(ctxt, hash)
	if err != nil {
		return Invoice{}, fmt.Errorf("unable to look up invoice: %w",
			err)
	}

	result := Invoice{
		PaymentHash: hash,
		Preimage:    inv.Preimage,
		State:       inv.State,
	}
	g.cache.Add(hash, result)

	return result, nil
}

// DecodeInvoice implements Gateway.
func (g *LndGateway) DecodeInvoice(ctx context.Context,
	payReq string) (lntypes.Hash, error) {

	ctxt, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	decoded, err := g.client.DecodePaymentRequest(ctxt, payReq)
	if err != nil {
		return lntypes.Hash{}, fmt.Errorf("unable to decode payment "+
			"request: %w", err)
	}

	return decoded.PaymentHash, nil
}

// GetInfo implements Gateway.
func (g *LndGateway) GetInfo(ctx context.Context) (NodeInfo, error) {
	ctxt, cancel := context.WithTimeout(ctx, defaultCallTimeout)
	defer cancel()

	info, err := g.client.GetInfo(ctxt)
	if err != nil {
		return NodeInfo{}, fmt.Errorf("unable to query node info: %w",
			err)
	}

	return NodeInfo{
		Pubkey:      fmt.Sprintf("%x", info.IdentityPubkey),
		Alias:       info.Alias,
		BlockHeight: info.BlockHeight,
	}, nil
}

// subscriptionLoop keeps the invoice cache warm by following the node's
// invoice update stream. On any stream error it sleeps briefly and
// resubscribes; it never terminates on its own, only on Stop.
func (g *LndGateway) subscriptionLoop() {
	defer g.wg.Done()

	for {
		select {
		case <-g.quit:
			return
		default:
		}

		if err := g.runSubscription(); err != nil {
			log.Errorf("invoice subscription ended: %v", err)
		}

		select {
		case <-time.After(reconnectDelay):
		case <-g.quit:
			return
		}
	}
}

func (g *LndGateway) runSubscription() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-g.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	updates, errChan, err := g.client.SubscribeInvoices(
		ctx, lndclient.InvoiceSubscriptionRequest{},
	)
	if err != nil {
		return fmt.Errorf("unable to subscribe to invoices: %w", err)
	}

	for {
		select {
		case <-g.quit:
			return nil

		case err := <-errChan:
			return err

		case inv, ok := <-updates:
			if !ok {
				return fmt.Errorf("invoice subscription closed")
			}
			g.cache.Add(inv.Hash, Invoice{
				PaymentHash: inv.Hash,
				State:       inv.State,
			})
		}
	}
}
