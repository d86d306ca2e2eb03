package lsatproxy

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lightninglabs/lndclient"
	"github.com/lightninglabs/lsatproxy/flow"
	"github.com/lightninglabs/lsatproxy/gateway"
	"github.com/lightninglabs/lsatproxy/mint"
	"github.com/lightninglabs/lsatproxy/quota"
	"github.com/lightninglabs/lsatproxy/ratelimit"
	"github.com/lightninglabs/lsatproxy/upstream"
)

// Server is the running proxy: an lnd connection, the components wired on
// top of it, and the HTTP server serving the Challenge/Verify Flow.
type Server struct {
	cfg *Config

	gw    *gateway.LndGateway
	store *quota.Store

	httpServer *http.Server
}

// NewServer connects to lnd and wires the Node Gateway, Quota Store,
// Credential Engine, Upstream Forwarder, and rate limiter into a Flow served
// over HTTP, following the shape of cfg.
func NewServer(cfg *Config) (*Server, error) {
	services, err := lndclient.NewLndServices(&lndclient.LndServicesConfig{
		LndAddress:         cfg.Lnd.Host,
		Network:            lndclient.NetworkMainnet,
		TLSPath:            cfg.Lnd.TLSPath,
		CustomMacaroonPath: cfg.Lnd.MacPath,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to connect to lnd: %w", err)
	}

	gw := gateway.NewLndGateway(services.Client)

	store, err := quota.NewStore(cfg.QuotaDBPath)
	if err != nil {
		gw.Stop()
		return nil, fmt.Errorf("unable to open quota store: %w", err)
	}

	engine := mint.New(gw, store)
	forwarder := upstream.NewForwarder(cfg.ReadTimeout)
	limiter := ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Burst)

	f := flow.New(engine, forwarder, gw, limiter, cfg.Backends)

	httpServer := &http.Server{
		Addr:         cfg.Server.addr(),
		Handler:      f.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &Server{
		cfg:        cfg,
		gw:         gw,
		store:      store,
		httpServer: httpServer,
	}, nil
}

// ListenAndServe blocks serving the Challenge/Verify Flow until the server
// is shut down or a fatal error occurs.
func (s *Server) ListenAndServe() error {
	log.Infof("Starting the server, listening on %s.", s.cfg.Server.addr())

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and releases the Node Gateway
// and Quota Store.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.IdleTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	s.gw.Stop()

	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}
