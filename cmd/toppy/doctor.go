package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toppy-project/toppy/internal/doctor"
)

func newDoctorCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local diagnostic checks against the configured gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the report as JSON instead of human-readable lines")

	return cmd
}

// runDoctor always exits 0, per spec.md §6: the consumer inspects the
// report's overall field rather than the process exit code.
func runDoctor(ctx context.Context, jsonOutput bool) error {
	env := doctor.EnvironmentFromOS()
	report := doctor.Run(ctx, env)

	if jsonOutput {
		data, err := report.MarshalJSONPretty()
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	}

	for _, line := range report.Lines() {
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}
