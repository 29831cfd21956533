package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/cluster/agent"
	"github.com/fornellas/roam/host"
)

var agentName string
var defaultAgentName = "agent"

var agentStorePath string
var defaultAgentStorePath = ""

var agentMetricsAddress string
var defaultAgentMetricsAddress = ""

var AgentCmd = &cobra.Command{
	Use:    "agent",
	Short:  "Serve a cluster at this host over stdin / stdout.",
	Long:   "Serve a cluster at this host over stdin / stdout. This is spawned by --cluster-agent, not meant to be used directly.",
	Args:   cobra.NoArgs,
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "🐈 Agent", "name", agentName)

		if agentMetricsAddress != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			httpServer := &http.Server{
				Addr:              agentMetricsAddress,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "err", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown metrics server", "err", err)
				}
			}()
		}

		server := agent.NewServer(ctx, cluster.NewHostCluster(agentName, host.Local{}, agentStorePath))
		logger.Info("Serving")
		if err := server.ServeIO(os.Stdin, os.Stdout); err != nil {
			logger.Error("Failed", "err", err)
			Exit(1)
		}
	},
}

func init() {
	AgentCmd.Flags().StringVarP(
		&agentName, "name", "", defaultAgentName,
		"Cluster name",
	)
	AgentCmd.Flags().StringVarP(
		&agentStorePath, "store-path", "", defaultAgentStorePath,
		"Path where data without an explicit path is stored",
	)
	AgentCmd.Flags().StringVarP(
		&agentMetricsAddress, "metrics-address", "", defaultAgentMetricsAddress,
		"Serve Prometheus metrics at /metrics on this address, eg: 127.0.0.1:9100",
	)

	RootCmd.AddCommand(AgentCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		agentName = defaultAgentName
		agentStorePath = defaultAgentStorePath
		agentMetricsAddress = defaultAgentMetricsAddress
	})
}
