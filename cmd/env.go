package main

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/cluster"
	envPkg "github.com/fornellas/roam/env"
	"github.com/fornellas/roam/location"
	"github.com/fornellas/roam/resource"
)

var envName string
var defaultEnvName = ""

var envForce bool
var defaultEnvForce = false

var envMount bool
var defaultEnvMount = false

var envPath string
var defaultEnvPath = ""

var envToSystem string
var defaultEnvToSystem = location.SystemFile

var envToOptions map[string]string
var defaultEnvToOptions = map[string]string{}

func addEnvFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(
		&envName, "name", "", defaultEnvName,
		"Only use the env with this name",
	)
}

func addEnvRelocateFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(
		&envPath, "path", "", defaultEnvPath,
		"Directory where source trees are copied to",
	)
	cmd.Flags().BoolVarP(
		&envMount, "mount", "", defaultEnvMount,
		"Mount source trees instead of copying them, when supported",
	)
}

// loadEnvs loads envs from the files at args, filtered by --name.
func loadEnvs(args []string) ([]*envPkg.Env, error) {
	envs, err := envPkg.Load(args)
	if err != nil {
		return nil, err
	}
	if envName == "" {
		return envs, nil
	}
	for _, e := range envs {
		if e.Name == envName {
			return []*envPkg.Env{e}, nil
		}
	}
	return nil, fmt.Errorf("env %#v not found", envName)
}

func getToOptions() envPkg.ToOptions {
	return envPkg.ToOptions{
		Path:         envPath,
		Options:      location.Options(envToOptions),
		Mount:        envMount,
		ForceInstall: envForce,
	}
}

var EnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Provision execution environments declared in HCL files.",
}

var EnvFingerprintCmd = &cobra.Command{
	Use:   "fingerprint [flags] FILE...",
	Short: "Print each env name and fingerprint.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger := log.MustLogger(cmd.Context())
		envs, err := loadEnvs(args)
		if err != nil {
			logger.Error("Failed to load envs", "err", err)
			Exit(1)
			return
		}
		for _, e := range envs {
			fingerprint, err := e.Fingerprint()
			if err != nil {
				logger.Error("Failed", "env", e.Name, "err", err)
				Exit(1)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", e.Name, fingerprint)
		}
	},
}

var EnvInstallCmd = &cobra.Command{
	Use:   "install [flags] FILE...",
	Short: "Install envs at a cluster. Envs already installed there are skipped, unless --force.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "📦 Env")

		var retErr error
		defer func() {
			if retErr != nil {
				logger.Error("Failed", "err", retErr)
				Exit(1)
			}
		}()

		envs, err := loadEnvs(args)
		if err != nil {
			retErr = err
			return
		}
		c, err := GetCluster(ctx)
		if err != nil {
			retErr = err
			return
		}
		defer func() { retErr = errors.Join(retErr, c.Close(ctx)) }()

		for _, e := range envs {
			if _, err := e.ToCluster(ctx, c, getToOptions()); err != nil {
				retErr = fmt.Errorf("%s: %w", e, err)
				return
			}
		}
	},
}

var EnvRunCmd = &cobra.Command{
	Use:   "run [flags] FILE NAME -- CMD [ARGS]",
	Short: "Install an env at a cluster, then run a command within it.",
	Args:  cobra.MinimumNArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "📦 Env", "name", args[1])

		var exitCode int
		var retErr error
		defer func() {
			if retErr != nil {
				logger.Error("Failed", "err", retErr)
				Exit(1)
			}
			if exitCode != 0 {
				Exit(exitCode)
			}
		}()

		envName = args[1]
		envs, err := loadEnvs(args[:1])
		if err != nil {
			retErr = err
			return
		}
		c, err := GetCluster(ctx)
		if err != nil {
			retErr = err
			return
		}
		defer func() { retErr = errors.Join(retErr, c.Close(ctx)) }()

		e, err := envs[0].ToCluster(ctx, c, getToOptions())
		if err != nil {
			retErr = err
			return
		}
		key, err := c.PutResource(ctx, e.Config())
		if err != nil {
			retErr = err
			return
		}
		result, err := c.CallMethod(ctx, key, "run", map[string]any{
			"cmds": []any{shellquote.Join(args[2:]...)},
		})
		if err != nil {
			retErr = err
			return
		}
		exitCodes, _ := result.([]any)
		if len(exitCodes) != 1 {
			retErr = fmt.Errorf("unexpected result: %v", result)
			return
		}
		switch code := exitCodes[0].(type) {
		case int:
			exitCode = code
		case float64:
			exitCode = int(code)
		default:
			retErr = fmt.Errorf("unexpected exit code: %v", code)
		}
	},
}

var EnvToCmd = &cobra.Command{
	Use:   "to [flags] FILE...",
	Short: "Copy env source trees to a system, printing the relocated envs.",
	Long: "Copy env source trees to a system, printing the relocated envs.\n\n" +
		"System \"here\" is the cluster selected by the cluster flags, where the envs are also installed.",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "📦 Env")

		var retErr error
		defer func() {
			if retErr != nil {
				logger.Error("Failed", "err", retErr)
				Exit(1)
			}
		}()

		envs, err := loadEnvs(args)
		if err != nil {
			retErr = err
			return
		}
		if envToSystem == "here" {
			c, err := GetCluster(ctx)
			if err != nil {
				retErr = err
				return
			}
			defer func() { retErr = errors.Join(retErr, c.Close(ctx)) }()
			ctx = cluster.WithCurrent(ctx, c)
		}

		configs := []resource.Config{}
		for _, e := range envs {
			newEnv, err := e.To(ctx, envToSystem, getToOptions())
			if err != nil {
				retErr = fmt.Errorf("%s: %w", e, err)
				return
			}
			configs = append(configs, newEnv.Config())
		}
		encoder := yaml.NewEncoder(cmd.OutOrStdout())
		if err := encoder.Encode(configs); err != nil {
			retErr = err
			return
		}
		retErr = encoder.Close()
	},
}

func init() {
	for _, cmd := range []*cobra.Command{EnvFingerprintCmd, EnvInstallCmd, EnvToCmd} {
		addEnvFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{EnvInstallCmd, EnvRunCmd, EnvToCmd} {
		addEnvRelocateFlags(cmd)
		AddClusterFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{EnvInstallCmd, EnvRunCmd} {
		cmd.Flags().BoolVarP(
			&envForce, "force", "", defaultEnvForce,
			"Install even if already installed",
		)
	}
	EnvToCmd.Flags().StringVarP(
		&envToSystem, "to-system", "", defaultEnvToSystem,
		fmt.Sprintf("Destination system, one of %v, or \"here\"", location.Systems()),
	)
	EnvToCmd.Flags().StringToStringVarP(
		&envToOptions, "to-option", "", defaultEnvToOptions,
		"Destination system options",
	)

	EnvCmd.AddCommand(EnvFingerprintCmd, EnvInstallCmd, EnvRunCmd, EnvToCmd)
	RootCmd.AddCommand(EnvCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		envName = defaultEnvName
		envForce = defaultEnvForce
		envMount = defaultEnvMount
		envPath = defaultEnvPath
		envToSystem = defaultEnvToSystem
		envToOptions = defaultEnvToOptions
	})
}
