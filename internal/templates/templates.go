// Package templates provides embedded Hatchfile templates for hatch init.
package templates

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/config"
)

//go:embed *.yaml
var templatesFS embed.FS

// Template is a Hatchfile skeleton.
type Template struct {
	Name        string
	Description string
	Content     []byte
}

var descriptions = map[string]string{
	"http":     "Single HTTP release feed",
	"share":    "Releases on a file share, full packages only",
	"mirrored": "HTTP feed with mirror and file share fallbacks",
}

// List returns the template names in alphabetical order.
func List() []string {
	matches, err := fs.Glob(templatesFS, "*.yaml")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(m, path.Ext(m)))
	}
	sort.Strings(names)
	return names
}

// Get returns the named template as stored, with ${VAR} references intact.
func Get(name string) (*Template, error) {
	content, err := templatesFS.ReadFile(name + ".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundf("template %q", name)
	} else if err != nil {
		return nil, errors.Annotatef(err, "reading template %q", name)
	}
	return &Template{Name: name, Description: Description(name), Content: content}, nil
}

// Description returns a one-line summary of the template.
func Description(name string) string {
	if desc, ok := descriptions[name]; ok {
		return desc
	}
	return "Custom template"
}

// GetExpanded returns the named template with environment references
// resolved the same way Hatchfiles are.
func GetExpanded(name string) (*Template, error) {
	tmpl, err := Get(name)
	if err != nil {
		return nil, errors.Trace(err)
	}
	tmpl.Content = config.ExpandEnvVars(tmpl.Content)
	return tmpl, nil
}
