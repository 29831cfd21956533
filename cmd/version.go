package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fornellas/roam/version"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the program version.",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version.GetVersion())
	},
}

func init() {
	RootCmd.AddCommand(VersionCmd)
}
