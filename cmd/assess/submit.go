package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/2beens/fitassess/internal/capture"
	"github.com/2beens/fitassess/internal/exercise"
	"github.com/2beens/fitassess/internal/results"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func submitCommand(opts *options) *cobra.Command {
	var (
		exerciseName string
		reps         int
		raw          bool
	)

	cmd := &cobra.Command{
		Use:   "submit [video]",
		Short: "Submit a recorded exercise video for analysis",
		Long:  "Upload a video from device storage to the analysis service and print the normalized summary.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.analysisURL == "" {
				return errors.New("analysis service URL not set, use --analysis-url or FITASSESS_ANALYSIS_URL")
			}
			exerciseType, err := exercise.Parse(exerciseName)
			if err != nil {
				return err
			}
			picked, err := capture.PickVideo(args[0])
			if err != nil {
				return err
			}
			log.Debugf("submitting [%s] (%s, %d bytes) as %s", picked.Path, picked.MIMEType, picked.Size, exerciseType)

			progress := newProgressPrinter(cmd.ErrOrStderr())
			result, err := opts.submissionClient().SubmitVideo(cmd.Context(), picked.Path, exerciseType, progress.update)
			progress.done()
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%s (%s)", result.Error, result.Kind)
			}

			if raw {
				_, err := cmd.OutOrStdout().Write(append(result.Payload, '\n'))
				return err
			}

			var repOverride *int
			if cmd.Flags().Changed("reps") {
				repOverride = &reps
			}
			return writeJSON(cmd.OutOrStdout(), results.NormalizeFor(result.Payload, exerciseType, repOverride))
		},
	}

	cmd.Flags().StringVarP(&exerciseName, "exercise", "e", exercise.TypeSitUps.String(), "exercise type")
	cmd.Flags().IntVar(&reps, "reps", 0, "override the repetition count of the summary")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the raw analysis payload instead of the summary")

	return cmd
}

// progressPrinter prints upload progress in 10 percent steps.
type progressPrinter struct {
	out  io.Writer
	last int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, last: -1}
}

func (p *progressPrinter) update(percent int) {
	step := percent / 10 * 10
	if step <= p.last {
		return
	}
	p.last = step
	_, _ = fmt.Fprintf(p.out, "\ruploading ... %3d%%", step)
}

func (p *progressPrinter) done() {
	if p.last >= 0 {
		_, _ = fmt.Fprintln(p.out)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
