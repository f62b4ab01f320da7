package cmd

import (
	"context"
	"io"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/interactive"
	"github.com/adamancini/hatch/internal/update"
)

func newApplyCmd() *cobra.Command {
	var ignoreDelta bool
	var interactiveMode bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Install releases previously fetched with hatch download",
		Long: `Install the update planned from the release feed using packages already in
the packages directory. Fails if any of them is missing or damaged.

Examples:
  hatch download && hatch apply
  hatch apply --interactive    # Confirm before installing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var prompter *interactive.Prompter
			if interactiveMode {
				prompter = interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			return runApply(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), prompter, ignoreDelta)
		},
	}

	cmd.Flags().BoolVar(&ignoreDelta, "ignore-delta", false, "Apply the full package instead of deltas")
	cmd.Flags().BoolVarP(&interactiveMode, "interactive", "i", false, "Confirm before installing")

	return cmd
}

func runApply(ctx context.Context, stdout, stderr io.Writer, prompter *interactive.Prompter, ignoreDelta bool) error {
	h, err := loadHatchfile(stderr)
	if err != nil {
		return errors.Trace(err)
	}
	p, err := newPipeline(h)
	if err != nil {
		return errors.Trace(err)
	}
	defer p.flushMetrics()

	w := newWriter(stdout)
	checking := newProgress(stderr, w, "checking")
	info, err := p.resilient.CheckForUpdate(ctx, ignoreDelta || h.IgnoreDelta, checking.Report)
	checking.Done()
	if err != nil {
		return errors.Trace(err)
	}

	for _, e := range info.ReleasesToApply {
		if err := update.VerifyFile(filepath.Join(info.PackageDirectory, e.Filename), e); err != nil {
			return errors.Annotatef(err, "%s is not ready, run hatch download first", e.Filename)
		}
	}
	if prompter != nil && !prompter.ConfirmReleases(info.CurrentlyInstalledVersion, info.ReleasesToApply) {
		return errors.New("aborted")
	}

	applying := newProgress(stderr, w, "installing")
	result, err := p.resilient.ApplyReleases(ctx, info, applying.Report)
	applying.Done()
	if err != nil {
		return errors.Trace(err)
	}
	return w.Write(newInstallResult(info, result))
}
