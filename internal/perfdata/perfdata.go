package perfdata

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// File modes
const (
	FileAppend = 0
	FileWrite  = 1
	FilePipe   = 2
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = "[$KIND$PERFDATA]\t$TIMET$\t$HOSTNAME$\t$SERVICEDESC$\t$OUTPUT$\t$PERFDATA$"

// Writer appends one templated line per processed check result to the
// performance-data file.
type Writer struct {
	Path         string
	Template     string
	Mode         int
	ProcessEmpty bool

	mu   sync.Mutex
	file *os.File
}

// NewWriter returns a writer; the file is opened by Open.
func NewWriter(path, template string, mode int) *Writer {
	if template == "" {
		template = DefaultTemplate
	}
	return &Writer{Path: path, Template: template, Mode: mode}
}

// Open opens the perfdata file for writing.
func (w *Writer) Open() error {
	f, err := openPerfdataFile(w.Path, w.Mode)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.file = f
	w.mu.Unlock()
	return nil
}

// Close closes the file if open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Update writes the checkable's current performance data. Objects with
// processing disabled, and empty perfdata unless ProcessEmpty is set, are
// skipped. timet is the check time in Unix seconds.
func (w *Writer) Update(c *objects.Checkable, timet int64) error {
	if w == nil || !c.ProcessPerfData {
		return nil
	}
	if !w.ProcessEmpty && c.PerfData == "" {
		return nil
	}
	line := expandMacros(w.Template, checkableMacros(c, timet))
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	_, err := w.file.WriteString(line + "\n")
	return err
}

func openPerfdataFile(path string, mode int) (*os.File, error) {
	switch mode {
	case FileWrite:
		return os.Create(path)
	case FilePipe:
		return os.OpenFile(path, os.O_WRONLY, 0)
	default:
		return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
}

func expandMacros(template string, macros map[string]string) string {
	pairs := make([]string, 0, 2*len(macros))
	for k, v := range macros {
		pairs = append(pairs, "$"+k+"$", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func checkableMacros(c *objects.Checkable, timet int64) map[string]string {
	kind := "HOST"
	if c.IsService() {
		kind = "SERVICE"
	}
	return map[string]string{
		"KIND":        kind,
		"TIMET":       strconv.FormatInt(timet, 10),
		"HOSTNAME":    c.HostName,
		"SERVICEDESC": c.Description,
		"STATE":       c.StateName(c.CurrentState),
		"STATETYPE":   objects.StateTypeName(c.StateType),
		"OUTPUT":      c.PluginOutput,
		"PERFDATA":    c.PerfData,
	}
}

