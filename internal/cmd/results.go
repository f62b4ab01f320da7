package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/adamancini/hatch/internal/deploy"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/update"
)

// releaseView is the printable form of one manifest entry.
type releaseView struct {
	Version  string `json:"version" yaml:"version"`
	Filename string `json:"filename" yaml:"filename"`
	Size     int64  `json:"size" yaml:"size"`
	Delta    bool   `json:"delta" yaml:"delta"`
}

func newReleaseViews(entries []release.Entry) []releaseView {
	views := make([]releaseView, 0, len(entries))
	for _, e := range entries {
		views = append(views, releaseView{
			Version:  e.Version.String(),
			Filename: e.Filename,
			Size:     e.Filesize,
			Delta:    e.IsDelta,
		})
	}
	return views
}

// checkResult describes what an update would do.
type checkResult struct {
	Current      string        `json:"current,omitempty" yaml:"current,omitempty"`
	Target       string        `json:"target,omitempty" yaml:"target,omitempty"`
	UpToDate     bool          `json:"up_to_date" yaml:"up_to_date"`
	Delta        bool          `json:"delta" yaml:"delta"`
	DownloadSize int64         `json:"download_size" yaml:"download_size"`
	Releases     []releaseView `json:"releases,omitempty" yaml:"releases,omitempty"`
	StagingID    string        `json:"staging_id,omitempty" yaml:"staging_id,omitempty"`
	FetchedAt    time.Time     `json:"fetched_at" yaml:"fetched_at"`
}

func newCheckResult(info *update.UpdateInfo) checkResult {
	r := checkResult{
		UpToDate:  info.UpToDate(),
		Delta:     info.IsDelta,
		Releases:  newReleaseViews(info.ReleasesToApply),
		StagingID: info.StagingID,
		FetchedAt: info.FetchedAt,
	}
	if info.CurrentlyInstalledVersion != nil {
		r.Current = info.CurrentlyInstalledVersion.Version.String()
	}
	if info.FutureReleaseEntry != nil {
		r.Target = info.FutureReleaseEntry.Version.String()
	}
	for _, e := range info.ReleasesToApply {
		r.DownloadSize += e.Filesize
	}
	return r
}

func (r checkResult) RenderText(w io.Writer) error {
	current := r.Current
	if current == "" {
		current = "(none)"
	}
	if r.UpToDate {
		_, err := fmt.Fprintf(w, "Up to date at %s\n", current)
		return err
	}
	kind := "full package"
	if r.Delta {
		kind = fmt.Sprintf("%d delta(s)", len(r.Releases))
	}
	if _, err := fmt.Fprintf(w, "Update available: %s -> %s (%s, %d bytes)\n", current, r.Target, kind, r.DownloadSize); err != nil {
		return err
	}
	for _, rel := range r.Releases {
		if _, err := fmt.Fprintf(w, "  %s\n", rel.Filename); err != nil {
			return err
		}
	}
	return nil
}

// installResult describes a completed apply or update.
type installResult struct {
	checkResult   `yaml:",inline"`
	InstalledPath string             `json:"installed_path,omitempty" yaml:"installed_path,omitempty"`
	Operations    []deploy.Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
}

func newInstallResult(info *update.UpdateInfo, result *deploy.Result) installResult {
	r := installResult{checkResult: newCheckResult(info)}
	if result != nil {
		r.InstalledPath = result.InstalledPath
		r.Operations = result.Operations
	}
	return r
}

func (r installResult) RenderText(w io.Writer) error {
	if r.UpToDate && r.InstalledPath == "" {
		return r.checkResult.RenderText(w)
	}
	if _, err := fmt.Fprintf(w, "Installed %s at %s\n", r.Target, r.InstalledPath); err != nil {
		return err
	}
	for _, op := range r.Operations {
		mark := "ok"
		if !op.Success {
			mark = "FAILED: " + op.Error
		}
		if _, err := fmt.Fprintf(w, "  %s %s %s: %s\n", op.Type, op.Action, op.Name, mark); err != nil {
			return err
		}
	}
	return nil
}

// statusResult wraps an install root's status for text output.
type statusResult struct {
	update.Status `yaml:",inline"`
	Endpoints     []string `json:"endpoints" yaml:"endpoints"`
}

func (r statusResult) RenderText(w io.Writer) error {
	current := r.Current
	if current == "" {
		current = "(none)"
	}
	lines := []string{
		fmt.Sprintf("Root:       %s", r.RootDir),
		fmt.Sprintf("Installed:  %s", current),
		fmt.Sprintf("Staging id: %s", r.StagingID),
	}
	for i, ep := range r.Endpoints {
		label := "Endpoints: "
		if i > 0 {
			label = "           "
		}
		lines = append(lines, fmt.Sprintf("%s %s", label, ep))
	}
	for _, v := range r.Versions {
		state := ""
		if v.Dead {
			state = " (dead)"
		}
		lines = append(lines, fmt.Sprintf("  %s%s", v.Path, state))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
