package main

import (
	"fmt"
	"os"

	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/results"

	"github.com/spf13/cobra"
)

func normalizeCommand() *cobra.Command {
	var (
		exerciseName string
		reps         int
	)

	cmd := &cobra.Command{
		Use:   "normalize [payload.json]",
		Short: "Normalize a saved analysis payload into a result summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fallback exercise.Type
			if exerciseName != "" {
				t, err := exercise.Parse(exerciseName)
				if err != nil {
					return err
				}
				fallback = t
			}

			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			var repOverride *int
			if cmd.Flags().Changed("reps") {
				repOverride = &reps
			}
			return writeJSON(cmd.OutOrStdout(), results.NormalizeFor(payload, fallback, repOverride))
		},
	}

	cmd.Flags().StringVarP(&exerciseName, "exercise", "e", "", "exercise used when the payload does not name one")
	cmd.Flags().IntVar(&reps, "reps", 0, "override the repetition count of the summary")

	return cmd
}
