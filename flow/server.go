// Package flow implements the Challenge/Verify Flow: the HTTP-facing state
// machine that ties together credential minting, verification, and
// upstream forwarding for each paywalled backend route.
package flow

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lightninglabs/lsatproxy/backend"
	"github.com/lightninglabs/lsatproxy/binder"
	"github.com/lightninglabs/lsatproxy/gateway"
	"github.com/lightninglabs/lsatproxy/l402"
	"github.com/lightninglabs/lsatproxy/mint"
	"github.com/lightninglabs/lsatproxy/ratelimit"
	"github.com/lightninglabs/lsatproxy/upstream"
)

// defaultHealthTimeout bounds the node RPC made by the liveness probe.
const defaultHealthTimeout = 5 * time.Second

// Flow wires the Credential Engine, Upstream Forwarder, Node Gateway, and
// mint-step rate limiter into the Challenge/Verify Flow's HTTP state
// machine.
type Flow struct {
	engine    *mint.Engine
	forwarder *upstream.Forwarder
	gw        gateway.Gateway
	limiter   *ratelimit.Limiter
	backends  map[string]backend.Descriptor
}

// New constructs a Flow serving the given backend descriptors.
func New(engine *mint.Engine, forwarder *upstream.Forwarder,
	gw gateway.Gateway, limiter *ratelimit.Limiter,
	backends []backend.Descriptor) *Flow {

	byPath := make(map[string]backend.Descriptor, len(backends))
	for _, b := range backends {
		byPath[b.Path] = b
	}

	return &Flow{
		engine:    engine,
		forwarder: forwarder,
		gw:        gw,
		limiter:   limiter,
		backends:  byPath,
	}
}

// Handler builds the HTTP mux serving every configured backend plus the
// fixed /invoice/status and /healthz routes.
func (f *Flow) Handler() http.Handler {
	mux := http.NewServeMux()

	for path, b := range f.backends {
		b := b
		mux.HandleFunc(path, f.withCORS(func(w http.ResponseWriter,
			r *http.Request) {

			f.handleBackend(w, r, b)
		}))
	}

	mux.HandleFunc("/invoice/status", f.withCORS(f.handleInvoiceStatus))
	mux.HandleFunc("/healthz", f.withCORS(f.handleHealthz))

	return mux
}

// withCORS adds the cross-origin headers every response carries and
// short-circuits preflight OPTIONS requests.
func (f *Flow) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addCORSHeaders(w.Header())

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func addCORSHeaders(header http.Header) {
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
	header.Set(
		"Access-Control-Allow-Headers",
		"accept-authenticate, content-type, authorization",
	)
	header.Set("Access-Control-Expose-Headers", "*")
}

// handleBackend drives the Challenge/Verify Flow for a single paywalled
// route: mint a challenge for an unauthenticated request, or verify,
// charge, and forward an authenticated one.
func (f *Flow) handleBackend(w http.ResponseWriter, r *http.Request,
	b backend.Descriptor) {

	fields, err := decodeStringFields(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	bodyDigest := binder.Digest(fields)

	if r.Header.Get(l402.HeaderAuthorization) == "" &&
		r.Header.Get(l402.HeaderMacaroonMD) == "" &&
		r.Header.Get(l402.HeaderMacaroon) == "" {

		f.handleChallenge(w, r, b, bodyDigest)
		return
	}

	f.handleVerifyAndForward(w, r, b, fields, bodyDigest)
}

func (f *Flow) handleChallenge(w http.ResponseWriter, r *http.Request,
	b backend.Descriptor, bodyDigest [32]byte) {

	if f.limiter != nil && !f.limiter.Allow(remoteIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	challenge, err := f.engine.Mint(r.Context(), b, bodyDigest)
	if err != nil {
		log.Errorf("mint failed for backend=%v: %v", b.Path, err)
		writeError(w, http.StatusInternalServerError,
			"UNHANDLED_REJECTION")
		return
	}

	w.Header().Set("WWW-Authenticate", challenge.WWWAuthenticate())
	w.WriteHeader(http.StatusPaymentRequired)
}

func (f *Flow) handleVerifyAndForward(w http.ResponseWriter, r *http.Request,
	b backend.Descriptor, fields map[string]string, bodyDigest [32]byte) {

	mac, preimage, err := l402.FromHeader(r.Header)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed credential "+
			"header")
		return
	}

	remaining, err := f.engine.Verify(
		r.Context(), mac, preimage, b, bodyDigest,
	)
	if err != nil {
		status, msg := clientRejection(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("verify failed for backend=%v: %v",
				b.Path, err)
		}
		writeError(w, status, msg)
		return
	}

	paragraphs, err := f.forwarder.Forward(r.Context(), b, fields)
	if err != nil {
		log.Errorf("upstream forward failed for backend=%v: %v",
			b.Path, err)
		writeError(w, http.StatusBadGateway, "upstream unreachable")
		return
	}

	w.Header().Set("x-msats-quota", strconv.FormatUint(remaining, 10))
	writeJSON(w, http.StatusOK, map[string]any{"data": paragraphs})
}

type invoiceStatusRequest struct {
	Invoice string `json:"invoice"`
}

type invoiceStatusResponse struct {
	Preimage string `json:"preimage"`
	State    int    `json:"state"`
}

func (f *Flow) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	var req invoiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ctx := r.Context()

	hash, err := f.gw.DecodeInvoice(ctx, req.Invoice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice")
		return
	}

	inv, err := f.gw.LookupInvoice(ctx, hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invoice lookup failed")
		return
	}

	var preimageHex string
	if inv.Preimage != nil {
		preimageHex = hex.EncodeToString(inv.Preimage[:])
	}

	writeJSON(w, http.StatusOK, invoiceStatusResponse{
		Preimage: preimageHex,
		State:    int(inv.State),
	})
}

// handleHealthz is the supplemented liveness probe: it succeeds only if the
// Node Gateway is reachable.
func (f *Flow) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultHealthTimeout)
	defer cancel()

	info, err := f.gw.GetInfo(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "node unreachable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"node_pubkey":  info.Pubkey,
		"node_alias":   info.Alias,
		"block_height": info.BlockHeight,
	})
}

func decodeStringFields(r *http.Request) (map[string]string, error) {
	if r.Body == nil {
		return map[string]string{}, nil
	}

	var fields map[string]string
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]string{}
	}

	return fields, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
