package main

import (
	"net/http"
	"os"
	"time"

	"github.com/2beens/fitassess/internal/faceverify"
	"github.com/2beens/fitassess/internal/logging"
	"github.com/2beens/fitassess/internal/submission"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// options are shared by all subcommands.
type options struct {
	faceURL          string
	analysisURL      string
	skipNgrokWarning bool
	timeout          time.Duration
	logLevel         string

	// httpClient overrides the instrumented default client
	httpClient *http.Client
}

func rootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "assess",
		Short:        "Fitness assessment operator CLI",
		Long:         "Submit recorded exercise videos and face images to the analysis services, and inspect results.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// stdout carries command output only
			log.SetOutput(cmd.ErrOrStderr())
			log.SetLevel(logging.GetLevel(opts.logLevel))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.faceURL, "face-url", os.Getenv("FITASSESS_FACE_URL"), "face verification service base URL")
	flags.StringVar(&opts.analysisURL, "analysis-url", os.Getenv("FITASSESS_ANALYSIS_URL"), "exercise analysis service base URL")
	flags.BoolVar(&opts.skipNgrokWarning, "skip-ngrok-warning", true, "send the ngrok-skip-browser-warning header")
	flags.DurationVar(&opts.timeout, "timeout", 0, "request timeout (0 uses the client default)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		submitCommand(opts),
		verifyCommand(opts),
		normalizeCommand(),
		exercisesCommand(),
	)

	return rootCmd
}

func (o *options) submissionClient() *submission.Client {
	return submission.NewClient(submission.ClientParams{
		BaseURL:          o.analysisURL,
		SkipNgrokWarning: o.skipNgrokWarning,
		Timeout:          o.timeout,
		HTTPClient:       o.httpClient,
	})
}

func (o *options) verificationClient() *faceverify.Client {
	return faceverify.NewClient(faceverify.ClientParams{
		BaseURL:          o.faceURL,
		SkipNgrokWarning: o.skipNgrokWarning,
		Timeout:          o.timeout,
		HTTPClient:       o.httpClient,
	})
}
