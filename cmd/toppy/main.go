// Command toppy is Toppy's client CLI: open an authenticated tunnel and
// relay local connections through it (`up`), or run local diagnostic
// probes (`doctor`).
//
// Grounded on the pack's guillaumerose-crc CLI (spf13/cobra + spf13/pflag
// command tree, spf13/viper-backed config loading) generalized from crc's
// multi-subcommand VM lifecycle to Toppy's `up`/`doctor` pair.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "toppy",
		Short:         "Toppy tunnels a local TCP listener through an authenticated HTTP/3 gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newUpCommand())
	root.AddCommand(newDoctorCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
