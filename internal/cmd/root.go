package cmd

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/logging"
	"github.com/adamancini/hatch/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	rootDir      string
	verbose      bool
	quiet        bool
)

// buildInfo is stamped by the linker through main.
var buildInfo struct {
	version, commit, date string
}

// Execute runs the hatch command line.
func Execute(version, commit, date string) error {
	return ExecuteContext(context.Background(), version, commit, date)
}

// ExecuteContext runs the hatch command line; cancelling ctx aborts the
// running operation.
func ExecuteContext(ctx context.Context, version, commit, date string) error {
	return newRootCmd(version, commit, date).ExecuteContext(ctx)
}

func newRootCmd(version, commit, date string) *cobra.Command {
	buildInfo.version, buildInfo.commit, buildInfo.date = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "hatch",
		Short: "Install and update an application from a release feed",
		Long: `hatch keeps an install root up to date from one or more release endpoints.

Describe the install root and its endpoints in a Hatchfile, then run
hatch update to fetch and install the newest release.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := output.ParseFormat(outputFormat); err != nil {
				return errors.Trace(err)
			}
			return configureLogging(cmd.ErrOrStderr(), "")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to Hatchfile")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Install root, overrides root_dir from the Hatchfile")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newApplyCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newUninstallCmd())
	rootCmd.AddCommand(newDeltaCmd())
	rootCmd.AddCommand(newManifestCmd())
	rootCmd.AddCommand(newVersionCmd())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// configureLogging sends log output to w. The flags win over the
// Hatchfile's log_level, which wins over the INFO default.
func configureLogging(w io.Writer, fileLevel string) error {
	level := loggo.INFO
	switch {
	case verbose:
		level = loggo.DEBUG
	case quiet:
		level = loggo.ERROR
	case fileLevel != "":
		parsed, err := logging.ParseLevel(fileLevel)
		if err != nil {
			return errors.Trace(err)
		}
		level = parsed
	}
	return errors.Trace(logging.Configure(w, level))
}

func newWriter(w io.Writer) *output.Writer {
	// The format was checked in PersistentPreRunE.
	format, _ := output.ParseFormat(outputFormat)
	return output.NewWriter(w, format)
}
