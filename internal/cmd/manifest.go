package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/backup"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

type manifestOptions struct {
	toStdout    bool
	staging     map[string]int
	keepHistory int
	restore     string
}

func newManifestCmd() *cobra.Command {
	var opts manifestOptions

	cmd := &cobra.Command{
		Use:   "manifest <dir>",
		Short: "Write the RELEASES manifest for a directory of packages",
		Long: `Scan a release directory for packages named <name>-<version>-full.zip or
<name>-<version>-delta.zip and write the RELEASES manifest listing them.

The manifest being replaced is kept in ` + backup.DirName + ` so a bad
publish can be undone with --restore.

Examples:
  hatch manifest /srv/releases/myapp
  hatch manifest . --stdout
  hatch manifest . --staging 1.2.0=25   # Roll 1.2.0 out to a quarter of installs
  hatch manifest . --restore latest     # Put the previous manifest back`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.toStdout, "stdout", false, "Print the manifest instead of writing it")
	cmd.Flags().StringToIntVar(&opts.staging, "staging", nil, "Rollout percentage per version, e.g. 1.2.0=25")
	cmd.Flags().IntVar(&opts.keepHistory, "keep-history", backup.DefaultKeepCount, "Replaced manifests to keep, 0 keeps none")
	cmd.Flags().StringVar(&opts.restore, "restore", "", "Restore a saved manifest by id, or latest")

	return cmd
}

func runManifest(stdout io.Writer, dir string, opts manifestOptions) error {
	var entries []release.Entry
	var err error
	if opts.restore != "" {
		entries, err = restoredEntries(dir, opts.restore)
	} else {
		entries, err = release.BuildFromDirectory(dir)
		if err == nil && len(entries) == 0 {
			err = errors.NotFoundf("release packages in %s", dir)
		}
	}
	if err != nil {
		return errors.Trace(err)
	}
	if err := applyStagingFlags(entries, opts.staging); err != nil {
		return errors.Trace(err)
	}

	if opts.toStdout {
		return errors.Trace(release.Write(stdout, entries))
	}

	path := filepath.Join(dir, types.ManifestFileName)
	if err := saveHistory(dir, path, release.Format(entries), opts.keepHistory); err != nil {
		return errors.Trace(err)
	}
	if err := release.WriteFile(path, entries); err != nil {
		return errors.Trace(err)
	}
	return newWriter(stdout).Write(manifestResult{Path: path, Releases: newReleaseViews(entries)})
}

func restoredEntries(dir, id string) ([]release.Entry, error) {
	b, err := backup.NewManager(dir, buildInfo.version, nil).Get(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entries, err := release.Parse(b.Manifest)
	if err != nil {
		return nil, errors.Annotatef(err, "backup %s", b.ID)
	}
	return entries, nil
}

// saveHistory snapshots the manifest at path before it is replaced by next,
// then prunes the history to keep entries.
func saveHistory(dir, path, next string, keep int) error {
	if keep <= 0 {
		return nil
	}
	current, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Trace(err)
	}
	if string(current) == next {
		return nil
	}

	history := backup.NewManager(dir, buildInfo.version, nil)
	b, err := history.Create(string(current), "replaced by hatch manifest")
	if err != nil {
		return errors.Trace(err)
	}
	logger.Infof("saved previous manifest as %s", b.ID)
	if _, err := history.Prune(keep); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func applyStagingFlags(entries []release.Entry, staging map[string]int) error {
	for version, pct := range staging {
		if pct < 0 || pct > 100 {
			return errors.NotValidf("staging percentage %d for %s", pct, version)
		}
		v, err := release.ParseVersion(version)
		if err != nil {
			return errors.Annotatef(err, "staging version %q", version)
		}
		matched := false
		for i := range entries {
			if entries[i].Version.IsEqual(v) {
				pct := pct
				entries[i].StagingPercentage = &pct
				matched = true
			}
		}
		if !matched {
			return errors.NotFoundf("release %s", version)
		}
	}
	return nil
}

type manifestResult struct {
	Path     string        `json:"path" yaml:"path"`
	Releases []releaseView `json:"releases" yaml:"releases"`
}

func (r manifestResult) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Wrote %d release(s) to %s\n", len(r.Releases), r.Path)
	return err
}
