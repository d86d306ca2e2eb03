package lsatproxy

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/lsatproxy/flow"
	"github.com/lightninglabs/lsatproxy/gateway"
	"github.com/lightninglabs/lsatproxy/l402"
	"github.com/lightninglabs/lsatproxy/mint"
	"github.com/lightninglabs/lsatproxy/quota"
	"github.com/lightninglabs/lsatproxy/ratelimit"
	"github.com/lightninglabs/lsatproxy/upstream"
	"github.com/lightningnetwork/lnd/build"
)

// Subsystem is the tag used by this package's own log lines.
const Subsystem = "PRXY"

var (
	logWriter = build.NewRotatingLogWriter()

	log = build.NewSubLogger(Subsystem, logWriter.GenSubLogger)
)

// LogWriter returns the root rotating log writer, used by the daemon
// entrypoint to translate a configured debug level into sub-logger levels.
func LogWriter() *build.RotatingLogWriter {
	return logWriter
}

func init() {
	setSubLogger(Subsystem, log, nil)
	addSubLogger(l402.Subsystem, l402.UseLogger)
	addSubLogger(mint.Subsystem, mint.UseLogger)
	addSubLogger(gateway.Subsystem, gateway.UseLogger)
	addSubLogger(quota.Subsystem, quota.UseLogger)
	addSubLogger(flow.Subsystem, flow.UseLogger)
	addSubLogger(ratelimit.Subsystem, ratelimit.UseLogger)
	addSubLogger(upstream.Subsystem, upstream.UseLogger)
}

// addSubLogger is a helper method to conveniently create and register the
// logger of a sub system.
func addSubLogger(subsystem string, useLogger func(btclog.Logger)) {
	logger := build.NewSubLogger(subsystem, logWriter.GenSubLogger)
	setSubLogger(subsystem, logger, useLogger)
}

// setSubLogger is a helper method to conveniently register the logger of a
// sub system.
func setSubLogger(subsystem string, logger btclog.Logger,
	useLogger func(btclog.Logger)) {

	logWriter.RegisterSubLogger(subsystem, logger)
	if useLogger != nil {
		useLogger(logger)
	}
}
