package cmd

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

func newDownloadCmd() *cobra.Command {
	var ignoreDelta bool

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the releases an update needs without installing them",
		Long: `Check the release feed and download every package the update needs into
the install root's packages directory. Packages already present with the
right checksum are not fetched again. Run hatch apply to install them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), ignoreDelta)
		},
	}

	cmd.Flags().BoolVar(&ignoreDelta, "ignore-delta", false, "Download the full package instead of deltas")

	return cmd
}

func runDownload(ctx context.Context, stdout, stderr io.Writer, ignoreDelta bool) error {
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

	if !info.UpToDate() {
		downloading := newProgress(stderr, w, "downloading")
		err = p.resilient.DownloadReleases(ctx, info.ReleasesToApply, downloading.Report)
		downloading.Done()
		if err != nil {
			return errors.Trace(err)
		}
	}
	return w.Write(newCheckResult(info))
}
