package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/deploy"
	"github.com/adamancini/hatch/internal/interactive"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = interactive.IsTerminal

func newUninstallCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the application and its install root",
		Long: `Run the uninstall hooks of the current version, remove shortcuts and
delete the install root. Asks for confirmation on a terminal unless
--force is given; refuses to run unattended without --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var prompter *interactive.Prompter
			if !force {
				if !stdinIsTerminal() {
					return errors.New("refusing to uninstall without --force when stdin is not a terminal")
				}
				prompter = interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.ErrOrStderr())
			}
			return runUninstall(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), prompter)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Do not ask for confirmation")

	return cmd
}

func runUninstall(ctx context.Context, stdout, stderr io.Writer, prompter *interactive.Prompter) error {
	h, err := loadHatchfile(stderr)
	if err != nil {
		return errors.Trace(err)
	}
	if prompter != nil && !prompter.Confirm("Remove %s and everything in it?", h.RootDir) {
		return errors.New("aborted")
	}
	p, err := newPipeline(h)
	if err != nil {
		return errors.Trace(err)
	}
	m, err := p.primary()
	if err != nil {
		return errors.Trace(err)
	}
	result, err := m.Uninstall(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return newWriter(stdout).Write(uninstallResult{
		RootDir:    h.RootDir,
		Operations: result.Operations,
	})
}

type uninstallResult struct {
	RootDir    string             `json:"root_dir" yaml:"root_dir"`
	Operations []deploy.Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
}

func (r uninstallResult) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Removed %s\n", r.RootDir); err != nil {
		return err
	}
	for _, op := range r.Operations {
		if !op.Success {
			if _, err := fmt.Fprintf(w, "  %s %s %s failed: %s\n", op.Type, op.Action, op.Name, op.Error); err != nil {
				return err
			}
		}
	}
	return nil
}
