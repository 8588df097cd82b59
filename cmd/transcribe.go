package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <video-url>",
	Short: "Transcribe a video from its captions or with the model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		langs, _ := cmd.Flags().GetStringSlice("lang")
		return runGenerate(cmd, func(ctx context.Context, svc *services) (any, error) {
			res := svc.transcriber.Transcribe(ctx, args[0], langs)
			if !res.Success {
				return nil, fmt.Errorf("transcription failed: %s", res.Error)
			}
			return res, nil
		})
	},
}

func init() {
	transcribeCmd.Flags().String("redis", "", "Redis address for the transcript cache")
	transcribeCmd.Flags().StringSlice("lang", nil, "Preferred caption languages, in order (default from config)")
}
