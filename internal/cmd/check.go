package cmd

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var ignoreDelta bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the release feed for a newer version",
		Long: `Fetch the remote release manifest and report which releases an update
would download. Nothing is downloaded or installed.

Examples:
  hatch check                  # Report available update
  hatch check --ignore-delta   # Plan for a full package only
  hatch check -o json          # Machine readable plan`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), ignoreDelta)
		},
	}

	cmd.Flags().BoolVar(&ignoreDelta, "ignore-delta", false, "Never plan delta packages")

	return cmd
}

func runCheck(ctx context.Context, stdout, stderr io.Writer, ignoreDelta bool) error {
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
	progress := newProgress(stderr, w, "checking")
	defer progress.Done()

	info, err := p.resilient.CheckForUpdate(ctx, ignoreDelta || h.IgnoreDelta, progress.Report)
	if err != nil {
		return errors.Trace(err)
	}
	return w.Write(newCheckResult(info))
}
