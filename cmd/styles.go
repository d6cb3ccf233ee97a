package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storyreel/internal/model/story"
)

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List the visual-style catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STYLE\tUUID")
		for _, s := range story.Styles {
			fmt.Fprintf(w, "%s\t%s\n", s, s.UUID())
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(stylesCmd)
}
