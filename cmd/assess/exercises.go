package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/2beens/fitassess/internal/exercise"

	"github.com/spf13/cobra"
)

func exercisesCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "exercises",
		Short: "List the assessment catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogue := exercise.Catalogue()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), catalogue)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tTITLE\tDURATION\tFACE CHECK\tENDPOINT")
			for _, test := range catalogue {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%ds\t%t\t%s\n",
					test.ID,
					test.Title,
					test.DurationSeconds,
					test.RequiresFaceVerification,
					test.ID.Endpoint(),
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")

	return cmd
}
