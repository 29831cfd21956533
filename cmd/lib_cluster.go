package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/cluster/agent"
	"github.com/fornellas/roam/resource"
)

var clusterName string
var defaultClusterName = ""

var clusterStorePath string
var defaultClusterStorePath = ""

var clusterAgent bool
var defaultClusterAgent = false

var clusterAgentCommand []string
var defaultClusterAgentCommand = []string{}

// AddClusterFlags adds flags to select a cluster: either a saved one, or one at the host
// selected by the host flags.
func AddClusterFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(
		&clusterName, "cluster", "", defaultClusterName,
		"Name of a cluster saved with \"cluster save\"",
	)
	cmd.Flags().StringVarP(
		&clusterStorePath, "cluster-store-path", "", defaultClusterStorePath,
		"Path at the cluster host where data without an explicit path is stored",
	)
	cmd.Flags().BoolVarP(
		&clusterAgent, "cluster-agent", "", defaultClusterAgent,
		"Spawn an agent at the host, instead of installing from this process",
	)
	cmd.Flags().StringSliceVar(
		&clusterAgentCommand, "cluster-agent-command", defaultClusterAgentCommand,
		"Command that runs roam at the host, for --cluster-agent",
	)
	AddHostFlags(cmd)
	AddStoreFlags(cmd)
	for _, name := range []string{"host-ssh", "host-docker", "cluster-store-path", "cluster-agent"} {
		cmd.MarkFlagsMutuallyExclusive("cluster", name)
	}
}

// GetClusterConfig returns the config of the cluster selected by the cluster flags, with the
// given name.
func GetClusterConfig(name string) resource.Config {
	hostType, target := GetHostTarget()
	config := resource.Config{
		resource.KeyType:    cluster.ResourceType,
		resource.KeySubtype: cluster.KindHost,
		resource.KeyName:    name,
		"host_type":         hostType,
		"host_target":       target,
		"store_path":        clusterStorePath,
	}
	if clusterAgent {
		config[resource.KeySubtype] = agent.KindAgent
		command := []any{}
		for _, arg := range clusterAgentCommand {
			command = append(command, arg)
		}
		config["command"] = command
	}
	return config
}

// GetCluster connects to the cluster selected by the cluster flags.
func GetCluster(ctx context.Context) (cluster.Cluster, error) {
	if clusterName != "" {
		c, err := cluster.Load(ctx, GetStore(), clusterName)
		if err != nil {
			return nil, fmt.Errorf("failed to load cluster %#v: %w", clusterName, err)
		}
		return c, nil
	}
	return cluster.FromConfig(ctx, GetClusterConfig("default"))
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		clusterName = defaultClusterName
		clusterStorePath = defaultClusterStorePath
		clusterAgent = defaultClusterAgent
		clusterAgentCommand = defaultClusterAgentCommand
	})
}
