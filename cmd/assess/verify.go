package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

type verifyOutput struct {
	Image    string `json:"image"`
	Verified bool   `json:"verified"`
}

func verifyCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [image]",
		Short: "Verify a face image against the registered athlete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.faceURL == "" {
				return errors.New("face service URL not set, use --face-url or FITASSESS_FACE_URL")
			}

			result := opts.verificationClient().VerifyFace(cmd.Context(), args[0])
			if !result.Success {
				return fmt.Errorf("%s (%s)", result.Error, result.Kind)
			}
			return writeJSON(cmd.OutOrStdout(), verifyOutput{
				Image:    args[0],
				Verified: result.Verified,
			})
		},
	}
}
