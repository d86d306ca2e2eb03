// Command lsatproxy-cli is a small admin tool for inspecting an lsatproxy
// quota ledger file. It opens the file through quota.NewStore, which waits
// at most one second for bolt's file lock, so it fails while a running
// daemon holds the same file open.
package main

import (
	"fmt"
	"os"

	"github.com/lightninglabs/lsatproxy"
	"github.com/lightninglabs/lsatproxy/quota"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var quotaDBPath string

	root := &cobra.Command{
		Use:   "lsatproxy-cli",
		Short: "Admin tooling for an lsatproxy instance's quota ledger",
	}
	root.PersistentFlags().StringVar(
		&quotaDBPath, "quotadb", lsatproxy.NewConfig().QuotaDBPath,
		"path to the quota store's database file",
	)

	root.AddCommand(newStatsCmd(&quotaDBPath))

	return root
}

// newStatsCmd implements the "stats" subcommand: it opens the same bbolt
// file the daemon writes to and reports live-entry count and total
// outstanding quota.
func newStatsCmd(quotaDBPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report the number of live credentials and outstanding quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := quota.NewStore(*quotaDBPath)
			if err != nil {
				return fmt.Errorf("unable to open quota "+
					"store: %w", err)
			}
			defer store.Close()

			var count int
			var total uint64

			err = store.ForEach(func(e quota.Entry) error {
				count++
				total += e.Quota
				return nil
			})
			if err != nil {
				return fmt.Errorf("unable to read quota "+
					"store: %w", err)
			}

			fmt.Printf("live credentials: %d\n", count)
			fmt.Printf("outstanding quota: %d msat\n", total)

			return nil
		},
	}
}
