package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/delta"
	"github.com/adamancini/hatch/internal/logging"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

func newDeltaCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "delta <base-full.zip> <new-full.zip>",
		Short: "Build a delta package between two full packages",
		Long: `Build the delta package that turns one full package into the next. By
default it is written next to the new package as <name>-<version>-delta.zip.

Examples:
  hatch delta myapp-1.0.0-full.zip myapp-1.1.0-full.zip
  hatch delta old.zip new.zip --out /srv/releases/myapp-1.1.0-delta.zip`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelta(cmd.OutOrStdout(), args[0], args[1], outputPath)
		},
	}

	// -o is taken by the global output format.
	cmd.Flags().StringVar(&outputPath, "out", "", "Path of the delta package")

	return cmd
}

func runDelta(stdout io.Writer, basePkg, newPkg, outputPath string) error {
	if outputPath == "" {
		name, version, isDelta, err := release.ParseFilename(filepath.Base(newPkg))
		if err != nil {
			return errors.Annotate(err, "cannot derive the delta name, pass --out")
		}
		if isDelta {
			return errors.NotValidf("new package %s is a delta", newPkg)
		}
		outputPath = filepath.Join(filepath.Dir(newPkg), release.EntryFilename(name, version, types.ReleaseKindDelta))
	}

	engine := delta.NewEngine(logging.Logger("delta"), "")
	if err := engine.CreateDelta(basePkg, newPkg, outputPath); err != nil {
		return errors.Trace(err)
	}

	entry, err := release.GenerateFromFile(outputPath)
	if err != nil {
		return errors.Trace(err)
	}
	return newWriter(stdout).Write(artifactResult{
		Path:    outputPath,
		Release: newReleaseViews([]release.Entry{entry})[0],
		SHA1:    entry.SHA1,
	})
}

type artifactResult struct {
	Path    string      `json:"path" yaml:"path"`
	Release releaseView `json:"release" yaml:"release"`
	SHA1    string      `json:"sha1" yaml:"sha1"`
}

func (r artifactResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Created %s (%d bytes, sha1 %s)\n", r.Path, r.Release.Size, r.SHA1)
	return err
}
