package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newWriter(cmd.OutOrStdout()).Write(versionInfo{
				Version: buildInfo.version,
				Commit:  buildInfo.commit,
				Date:    buildInfo.date,
			})
		},
	}
}

type versionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func (v versionInfo) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "hatch version %s (commit %s, built %s)\n", v.Version, v.Commit, v.Date)
	return err
}
