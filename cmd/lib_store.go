package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fornellas/roam/host"
	storePkg "github.com/fornellas/roam/store"
)

func getDefaultStorePath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	return filepath.Join(configDir, "roam")
}

var storePath string
var defaultStorePath = getDefaultStorePath()

// AddStoreFlags adds flags for the local store of saved clusters.
func AddStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(
		&storePath, "store-path", "", defaultStorePath,
		"Path on localhost where to store cluster configurations",
	)
}

// GetStore returns the local store of saved clusters.
func GetStore() storePkg.Store {
	return storePkg.NewLoggingWrapper(storePkg.NewHostStore(host.Local{}, storePath))
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		storePath = defaultStorePath
	})
}
