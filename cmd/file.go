package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/roam/blob"
	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/location"
)

var fileSystem string
var defaultFileSystem = location.SystemFile

var fileOptions map[string]string
var defaultFileOptions = map[string]string{}

var fileToSystem string
var defaultFileToSystem = blob.SystemHere

var fileToPath string
var defaultFileToPath = ""

var fileToOptions map[string]string
var defaultFileToOptions = map[string]string{}

func addFileFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(
		&fileSystem, "system", "", defaultFileSystem,
		fmt.Sprintf("System where the file is, one of %v", location.Systems()),
	)
	cmd.Flags().StringToStringVarP(
		&fileOptions, "option", "", defaultFileOptions,
		"System options, eg: region=us-east-1 for s3, host=example.com for ssh",
	)
}

func getFile(name, p string) *blob.File {
	return blob.New(blob.Config{
		Name:    name,
		System:  fileSystem,
		Path:    p,
		Options: location.Options(fileOptions),
	})
}

// runFileCmd runs fn with the file at args[0], logging and exiting on errors.
func runFileCmd(cmd *cobra.Command, args []string, fn func(*cobra.Command, *blob.File) error) {
	f := getFile("", args[0])
	ctx, logger := log.MustWithGroupAttrs(cmd.Context(), "📄 File", "path", f.Path(), "system", f.System())
	cmd.SetContext(ctx)
	err := fn(cmd, f)
	err = errors.Join(err, f.Close(ctx))
	if err != nil {
		logger.Error("Failed", "err", err)
		Exit(1)
	}
}

var FileCmd = &cobra.Command{
	Use:   "file",
	Short: "Read, write and move files across systems.",
}

var FileWriteCmd = &cobra.Command{
	Use:   "write [flags] PATH",
	Short: "Write stdin to a file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFileCmd(cmd, args, func(cmd *cobra.Command, f *blob.File) error {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			_, err = f.Write(cmd.Context(), data, false)
			return err
		})
	},
}

var FileFetchCmd = &cobra.Command{
	Use:   "fetch [flags] PATH",
	Short: "Write a file content to stdout.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFileCmd(cmd, args, func(cmd *cobra.Command, f *blob.File) error {
			return f.WithReader(cmd.Context(), func(r io.Reader) error {
				_, err := io.Copy(cmd.OutOrStdout(), r)
				return err
			})
		})
	},
}

var FileRmCmd = &cobra.Command{
	Use:   "rm [flags] PATH",
	Short: "Remove a file.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFileCmd(cmd, args, func(cmd *cobra.Command, f *blob.File) error {
			return f.Rm(cmd.Context())
		})
	},
}

var FileExistsCmd = &cobra.Command{
	Use:   "exists [flags] PATH",
	Short: "Print whether a file exists. Exits 1 if it does not.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var exists bool
		runFileCmd(cmd, args, func(cmd *cobra.Command, f *blob.File) error {
			var err error
			exists, err = f.ExistsInSystem(cmd.Context())
			return err
		})
		fmt.Fprintln(cmd.OutOrStdout(), exists)
		if !exists {
			Exit(1)
		}
	},
}

var FileToCmd = &cobra.Command{
	Use:   "to [flags] PATH",
	Short: "Copy a file to another system, printing where it was copied to.",
	Long: "Copy a file to another system, printing where it was copied to.\n\n" +
		"With --to-path, it is the destination directory, else the default path of the system is used. " +
		"System \"here\" is the cluster selected by the cluster flags, or the local file system.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runFileCmd(cmd, args, func(cmd *cobra.Command, f *blob.File) (err error) {
			ctx := cmd.Context()
			if fileToSystem == blob.SystemHere && (clusterName != "" || ssh != "" || docker != "") {
				c, clusterErr := GetCluster(ctx)
				if clusterErr != nil {
					return clusterErr
				}
				defer func() { err = errors.Join(err, c.Close(ctx)) }()
				ctx = cluster.WithCurrent(ctx, c)
			}
			var options location.Options
			if len(fileToOptions) > 0 {
				options = location.Options(fileToOptions)
			}
			newFile, err := f.To(ctx, fileToSystem, fileToPath, options)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, newFile.Close(ctx)) }()
			fmt.Fprintf(cmd.OutOrStdout(), "%s://%s\n", newFile.System(), newFile.Path())
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{FileWriteCmd, FileFetchCmd, FileRmCmd, FileExistsCmd, FileToCmd} {
		addFileFlags(cmd)
		FileCmd.AddCommand(cmd)
	}

	FileToCmd.Flags().StringVarP(
		&fileToSystem, "to-system", "", defaultFileToSystem,
		fmt.Sprintf("Destination system, one of %v, or %#v", location.Systems(), blob.SystemHere),
	)
	FileToCmd.Flags().StringVarP(
		&fileToPath, "to-path", "", defaultFileToPath,
		"Destination directory",
	)
	FileToCmd.Flags().StringToStringVarP(
		&fileToOptions, "to-option", "", defaultFileToOptions,
		"Destination system options",
	)
	AddClusterFlags(FileToCmd)

	RootCmd.AddCommand(FileCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		fileSystem = defaultFileSystem
		fileOptions = defaultFileOptions
		fileToSystem = defaultFileToSystem
		fileToPath = defaultFileToPath
		fileToOptions = defaultFileToOptions
	})
}
