package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
)

var ClusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage saved clusters.",
}

var ClusterSaveCmd = &cobra.Command{
	Use:   "save [flags] NAME",
	Short: "Save a cluster, so it can be used by name with --cluster.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🖧 Cluster", "name", args[0])

		if clusterName != "" {
			logger.Error("--cluster can not be used with save")
			Exit(1)
			return
		}
		config := GetClusterConfig(args[0])
		if err := GetStore().Save(ctx, cluster.ResourceType, args[0], config); err != nil {
			logger.Error("Failed", "err", err)
			Exit(1)
			return
		}
		logger.Info("Saved")
	},
}

var ClusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved clusters.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🖧 Cluster")
		names, err := GetStore().List(ctx, cluster.ResourceType)
		if err != nil {
			logger.Error("Failed", "err", err)
			Exit(1)
			return
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var ClusterRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a saved cluster.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🖧 Cluster", "name", args[0])
		if err := GetStore().Delete(ctx, cluster.ResourceType, args[0]); err != nil {
			logger.Error("Failed", "err", err)
			Exit(1)
		}
	},
}

var ClusterPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to a cluster and run a no-op command there.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🖧 Cluster")

		var retErr error
		defer func() {
			if retErr != nil {
				logger.Error("Failed", "err", retErr)
				Exit(1)
			}
		}()

		c, err := GetCluster(ctx)
		if err != nil {
			retErr = err
			return
		}
		defer func() { retErr = errors.Join(retErr, c.Close(ctx)) }()
		if _, err := c.Run(ctx, []string{"true"}); err != nil {
			retErr = err
			return
		}
		logger.Info("Pong", "cluster", c.Name())
	},
}

func init() {
	AddStoreFlags(ClusterListCmd)
	AddStoreFlags(ClusterRmCmd)
	AddClusterFlags(ClusterSaveCmd)
	AddClusterFlags(ClusterPingCmd)

	ClusterCmd.AddCommand(ClusterSaveCmd, ClusterListCmd, ClusterRmCmd, ClusterPingCmd)
	RootCmd.AddCommand(ClusterCmd)
}
