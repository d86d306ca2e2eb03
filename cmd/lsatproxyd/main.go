// Command lsatproxyd runs the LSAT paywall reverse proxy.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/lsatproxy"
	"github.com/lightningnetwork/lnd/build"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := lsatproxy.NewConfig()

	// First pass: parse the command line only far enough to learn where
	// the config file lives and whether the user overrode defaults that
	// affect loading it.
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok &&
			flagsErr.Type == flags.ErrHelp {

			return nil
		}
		return err
	}

	configFile := cfg.ConfigFile
	if configFile == "" {
		configFile = lsatproxy.DefaultConfigPath()
	}

	if _, err := os.Stat(configFile); err == nil {
		if err := lsatproxy.LoadConfigFile(configFile, cfg); err != nil {
			return fmt.Errorf("unable to parse config file: %w", err)
		}

		// Re-parse the command line so flags/env take precedence
		// over whatever the config file set.
		if _, err := parser.Parse(); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logWriter := lsatproxy.LogWriter()
	if err := logWriter.InitLogRotator(
		lsatproxy.DefaultLogPath(),
		lsatproxy.DefaultMaxLogFileSize, lsatproxy.DefaultMaxLogFiles,
	); err != nil {
		return fmt.Errorf("unable to initialize log rotator: %w", err)
	}
	if err := build.ParseAndSetDebugLevels(
		cfg.DebugLevel, logWriter,
	); err != nil {
		return fmt.Errorf("unable to set log levels: %w", err)
	}

	server, err := lsatproxy.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("unable to initialize server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		return server.Stop()
	}
}
