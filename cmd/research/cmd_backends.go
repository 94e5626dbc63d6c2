package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the registered backends and their reliability",
	Args:  cobra.NoArgs,
	RunE:  runBackends,
}

func runBackends(cmd *cobra.Command, _ []string) error {
	r, err := newResearcher(cliLogger())
	if err != nil {
		return fmt.Errorf("build research engine: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BACKEND\tRELIABILITY")
	for _, b := range r.Backends() {
		fmt.Fprintf(tw, "%s\t%.2f\n", b.ID, b.Reliability)
	}
	return tw.Flush()
}
