package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/templates"
)

func newInitCmd() *cobra.Command {
	var templateName string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new Hatchfile from a template",
		Long: `Create a new Hatchfile from a built-in template. ${HOME} and ${HATCH_APP}
references in the template are resolved when it is written.

Available templates:
  http       - Single HTTP release feed
  share      - Releases on a file share, full packages only
  mirrored   - HTTP feed with mirror and file share fallbacks

Examples:
  hatch init                               # Choose a template interactively
  hatch init --template=http
  HATCH_APP=notes hatch init -t mirrored
  hatch init --config ./Hatchfile.yaml     # Custom output location`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), templateName, configPath, force)
		},
	}

	cmd.Flags().StringVarP(&templateName, "template", "t", "", "Template name")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing Hatchfile")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, name := range templates.List() {
			completions = append(completions, fmt.Sprintf("%s\t%s", name, templates.Description(name)))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit writes a Hatchfile from a template, asking on stdin for anything
// the flags left open.
func runInit(stdin io.Reader, stdout, stderr io.Writer, templateName, outputPath string, force bool) error {
	reader := bufio.NewReader(stdin)

	if outputPath == "" {
		outputPath = defaultHatchfilePath()
	}
	outputPath = expandHomePath(outputPath)

	if _, err := os.Stat(outputPath); err == nil && !force {
		_, _ = fmt.Fprintf(stderr, "Hatchfile already exists at %s\n", outputPath)
		_, _ = fmt.Fprintf(stdout, "Overwrite? [y/N]: ")
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return errors.Annotate(err, "reading answer")
		}
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	if templateName == "" {
		selected, err := selectTemplate(reader, stdout)
		if err != nil {
			return errors.Trace(err)
		}
		templateName = selected
	}

	tmpl, err := templates.GetExpanded(templateName)
	if err != nil {
		return errors.Trace(err)
	}
	if err := validateTemplateContent(tmpl.Content); err != nil {
		return errors.Annotatef(err, "template %s", templateName)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return errors.Annotatef(err, "creating %s", filepath.Dir(outputPath))
	}
	if err := os.WriteFile(outputPath, tmpl.Content, 0644); err != nil {
		return errors.Annotate(err, "writing Hatchfile")
	}

	_, _ = fmt.Fprintf(stdout, "Created %s from the %s template\n", outputPath, templateName)
	if !quiet {
		_, _ = fmt.Fprintln(stdout, "\nNext steps:")
		_, _ = fmt.Fprintln(stdout, "  1. Point endpoints at your release feed")
		_, _ = fmt.Fprintln(stdout, "  2. Run 'hatch check' to see what would be installed")
		_, _ = fmt.Fprintln(stdout, "  3. Run 'hatch update' to install")
	}
	return nil
}

func selectTemplate(reader *bufio.Reader, stdout io.Writer) (string, error) {
	names := templates.List()

	_, _ = fmt.Fprintln(stdout, "Select a Hatchfile template:")
	for i, name := range names {
		_, _ = fmt.Fprintf(stdout, "  %d. %-10s - %s\n", i+1, name, templates.Description(name))
	}
	_, _ = fmt.Fprintf(stdout, "Select [1-%d]: ", len(names))

	answer, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.Annotate(err, "reading selection")
	}
	answer = strings.TrimSpace(answer)
	num, err := strconv.Atoi(answer)
	if err != nil || num < 1 || num > len(names) {
		return "", errors.NotValidf("selection %q", answer)
	}
	return names[num-1], nil
}

// validateTemplateContent loads content through the Hatchfile parser.
func validateTemplateContent(content []byte) error {
	tmpFile, err := os.CreateTemp("", "hatchfile-*.yaml")
	if err != nil {
		return errors.Trace(err)
	}
	tmpName := tmpFile.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmpFile.Write(content); err != nil {
		_ = tmpFile.Close()
		return errors.Trace(err)
	}
	if err := tmpFile.Close(); err != nil {
		return errors.Trace(err)
	}

	_, err = config.Load(tmpName)
	return errors.Trace(err)
}

func defaultHatchfilePath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hatch", "Hatchfile.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Hatchfile.yaml"
	}
	return filepath.Join(home, ".config", "hatch", "Hatchfile.yaml")
}

func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
