package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tanq16/splitdl/internal/output"
	"github.com/tanq16/splitdl/internal/state"
	"github.com/tanq16/splitdl/internal/utils"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [OUTPUT_PATH]",
		Short: "Show the saved progress of an interrupted download",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := state.NewStore(args[0])
			if !store.Exists() {
				output.PrintInfo(fmt.Sprintf("No resumable download for %s", args[0]))
				return
			}
			st, err := store.Load()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(exitFatal)
			}
			output.PrintHeader(st.OutputFile)
			output.PrintDetail(st.URL)
			fmt.Printf("%s%s%s\n", strings.Repeat(" ", 2),
				output.ProgressBar(st.DownloadedBytes(), st.TotalSize, 30),
				output.FDebug(fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(st.DownloadedBytes())), utils.FormatBytes(uint64(st.TotalSize)))))
			for _, seg := range st.Segments {
				fmt.Printf("%s%s %s %s%s\n", strings.Repeat(" ", 4),
					output.StatusIndicator(seg.Status.String()),
					output.FDetail(fmt.Sprintf("Seg %-3d", seg.ID)),
					output.ProgressBar(seg.DownloadedBytes, seg.Capacity(), 20),
					output.FDebug(fmt.Sprintf("bytes %d-%d %s", seg.Start, seg.End, seg.Status)))
			}
		},
	}
}
