// Package logging configures the loggo loggers used throughout hatch.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// Root is the name of the parent logger of every hatch component.
const Root = "hatch"

// Logger returns the component logger below Root, e.g. "hatch.update".
func Logger(component string) loggo.Logger {
	if component == "" {
		return loggo.GetLogger(Root)
	}
	return loggo.GetLogger(Root + "." + component)
}

// ParseLevel parses a level name such as "info" or "DEBUG".
func ParseLevel(s string) (loggo.Level, error) {
	if s == "" {
		return loggo.INFO, nil
	}
	level, ok := loggo.ParseLevel(s)
	if !ok {
		return loggo.UNSPECIFIED, errors.NotValidf("log level %q", s)
	}
	return level, nil
}

// Configure sends all log output to w and sets the level of the root logger.
// It replaces whatever writer was installed before.
func Configure(w io.Writer, level loggo.Level) error {
	writer := loggo.NewSimpleWriter(w, formatEntry)
	if _, err := loggo.ReplaceDefaultWriter(writer); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(loggo.ConfigureLoggers(fmt.Sprintf("<root>=%s", level)))
}

func formatEntry(entry loggo.Entry) string {
	ts := entry.Timestamp.In(time.UTC).Format("2006-01-02 15:04:05")
	module := strings.TrimPrefix(entry.Module, Root+".")
	return fmt.Sprintf("%s %-7s %s: %s", ts, entry.Level, module, entry.Message)
}
