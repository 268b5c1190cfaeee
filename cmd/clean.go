package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/state"
)

func newCleanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clean [OUTPUT_PATH]",
		Short: "Remove the resume state of a download",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := state.NewStore(args[0])
			if err := store.Delete(); err != nil {
				output.PrintError(fmt.Sprintf("Error removing state file: %v", err))
				os.Exit(exitFatal)
			}
			if all {
				if err := os.Remove(args[0]); err != nil && !errors.Is(err, os.ErrNotExist) {
					output.PrintError(fmt.Sprintf("Error removing partial file: %v", err))
					os.Exit(exitFatal)
				}
			}
			output.PrintSuccess("Resume state cleaned up")
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Also remove the partially downloaded output file")
	return cmd
}
