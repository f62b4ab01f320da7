package cmd

import (
	"context"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the install root's state",
		Long: `Show the installed version, the staging id, the version directories and
the configured endpoints. The release feed is not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runStatus(ctx context.Context, stdout, stderr io.Writer) error {
	h, err := loadHatchfile(stderr)
	if err != nil {
		return errors.Trace(err)
	}
	p, err := newPipeline(h)
	if err != nil {
		return errors.Trace(err)
	}
	m, err := p.primary()
	if err != nil {
		return errors.Trace(err)
	}
	st, err := m.Status(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return newWriter(stdout).Write(statusResult{Status: *st, Endpoints: h.Endpoints})
}
