package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	slogxtCobra "github.com/fornellas/slogxt/cobra"
	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/version"
)

// This is to be used in place of os.Exit() to aid writing test assertions on exit code.
var Exit func(int) = func(code int) { os.Exit(code) }

var RootCmd = &cobra.Command{
	Use:   "roam",
	Short: "Roam moves data and execution environments between systems and compute clusters.",
	Args:  cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		bindEnvironment(cmd)
		cmd.SetContext(log.WithLogger(
			cmd.Context(),
			slogxtCobra.GetLogger(cmd.OutOrStderr()).
				With("🧭 Roam", string(version.GetVersion())),
		))
	},
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.MustLogger(cmd.Context())
		if err := cmd.Help(); err != nil {
			logger.Error("failed to display help", "error", err)
			Exit(1)
		}
	},
}

// bindEnvironment sets every flag not given at the command line from its ROAM_* environment
// variable, eg: --store-path from ROAM_STORE_PATH.
// Inspired by https://github.com/spf13/viper/issues/671#issuecomment-671067523
func bindEnvironment(cmd *cobra.Command) {
	v := viper.New()
	v.SetEnvPrefix("ROAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "invalid ROAM_%s: %s\n", strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err)
			Exit(1)
		}
	})
}

var resetFlagsFns = []func(){
	func() { slogxtCobra.Reset() },
}

func resetChanged(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	for _, subCmd := range cmd.Commands() {
		resetChanged(subCmd)
	}
}

// ResetFlags sets all flags back to their defaults, as if never given.
func ResetFlags() {
	for _, resetFlagFn := range resetFlagsFns {
		resetFlagFn()
	}
	resetChanged(RootCmd)
}

func init() {
	slogxtCobra.AddLoggerFlags(RootCmd)
}
