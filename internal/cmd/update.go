package cmd

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/interactive"
)

func newUpdateCmd() *cobra.Command {
	var ignoreDelta bool
	var interactiveMode bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check, download and install the newest release",
		Long: `Bring the install root up to date: fetch the release manifest, download
what is needed and install it. If installing from deltas fails the full
package is tried once. Endpoints are tried in order until one succeeds.

Examples:
  hatch update                 # Update to the newest release
  hatch update --ignore-delta  # Always download the full package
  hatch update -i              # Show the plan and confirm first`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var prompter *interactive.Prompter
			if interactiveMode {
				prompter = interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			return runUpdate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), prompter, ignoreDelta)
		},
	}

	cmd.Flags().BoolVar(&ignoreDelta, "ignore-delta", false, "Never use delta packages")
	cmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Confirm before downloading")

	return cmd
}

func runUpdate(ctx context.Context, stdout, stderr io.Writer, prompter *interactive.Prompter, ignoreDelta bool) error {
	h, err := loadHatchfile(stderr)
	if err != nil {
		return errors.Trace(err)
	}
	p, err := newPipeline(h)
	if err != nil {
		return errors.Trace(err)
	}
	defer p.flushMetrics()

	ignoreDelta = ignoreDelta || h.IgnoreDelta
	w := newWriter(stdout)

	if prompter != nil {
		info, err := p.resilient.CheckForUpdate(ctx, ignoreDelta, nil)
		if err != nil {
			return errors.Trace(err)
		}
		if info.UpToDate() && !info.FreshInstall {
			return w.Write(newInstallResult(info, nil))
		}
		if !prompter.ConfirmReleases(info.CurrentlyInstalledVersion, info.ReleasesToApply) {
			return errors.New("aborted")
		}
	}

	progress := newProgress(stderr, w, "updating")
	info, result, err := p.resilient.UpdateApp(ctx, ignoreDelta, progress.Report)
	progress.Done()
	if err != nil {
		return errors.Trace(err)
	}
	return w.Write(newInstallResult(info, result))
}
