package main

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"
)

var RunCmd = &cobra.Command{
	Use:   "run [flags] -- CMD [ARGS]",
	Short: "Run command at a cluster.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🏃 Run")

		var retErr error
		defer func() {
			if retErr != nil {
				logger.Error("Failed", "err", retErr)
				Exit(1)
			}
		}()

		c, err := GetCluster(ctx)
		if err != nil {
			retErr = errors.Join(retErr, fmt.Errorf("failed to get cluster: %w", err))
			return
		}
		defer func() {
			if err := c.Close(ctx); err != nil {
				retErr = errors.Join(retErr, fmt.Errorf("failed to close cluster: %w", err))
			}
		}()

		exitCodes, err := c.Run(ctx, []string{shellquote.Join(args...)})
		if err != nil {
			retErr = errors.Join(retErr, fmt.Errorf("failed run: %w", err))
			return
		}
		if exitCodes[0] != 0 {
			Exit(exitCodes[0])
		}
	},
}

func init() {
	AddClusterFlags(RunCmd)

	RootCmd.AddCommand(RunCmd)
}
