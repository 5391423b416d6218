package checker

import (
	"strings"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// ParsedOutput contains the parsed components of plugin output.
type ParsedOutput struct {
	ShortOutput string
	LongOutput  string
	PerfData    string
}

// UnescapeNewlines turns literal "\n" sequences into line breaks and "\\"
// into a single backslash.
func UnescapeNewlines(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// ParseCheckOutput splits plugin output into its short output, long output
// and performance data:
//
//	SHORT OUTPUT | perfdata
//	LONG OUTPUT LINE 1
//	LONG OUTPUT LINE 2
//	| more perfdata
//	more perfdata lines
//
// With escaped set, literal "\n" sequences are line breaks. Long output is
// folded into one string joined by a literal "\n" with its backslashes
// doubled, so UnescapeNewlines restores the lines. Semicolons outside the
// performance data become colons.
func ParseCheckOutput(raw string, escaped bool) ParsedOutput {
	if raw == "" {
		return ParsedOutput{}
	}
	if escaped {
		raw = UnescapeNewlines(raw)
	}

	first, rest, multiline := strings.Cut(raw, "\n")
	short, perf, _ := strings.Cut(first, "|")
	perfLines := appendTrimmed(nil, perf)

	var long []string
	if multiline {
		lines := strings.Split(rest, "\n")
		for i, line := range lines {
			head, tail, ok := strings.Cut(line, "|")
			if !ok {
				long = append(long, line)
				continue
			}
			// Everything after the first pipe of the long output is perfdata.
			if head = strings.TrimSpace(head); head != "" {
				long = append(long, head)
			}
			perfLines = appendTrimmed(perfLines, tail)
			for _, l := range lines[i+1:] {
				perfLines = appendTrimmed(perfLines, l)
			}
			break
		}
	}
	for len(long) > 0 && strings.TrimSpace(long[len(long)-1]) == "" {
		long = long[:len(long)-1]
	}

	for i, line := range long {
		long[i] = strings.ReplaceAll(line, `\`, `\\`)
	}
	colons := strings.NewReplacer(";", ":")
	return ParsedOutput{
		ShortOutput: colons.Replace(strings.TrimSpace(short)),
		LongOutput:  colons.Replace(strings.Join(long, `\n`)),
		PerfData:    strings.Join(perfLines, " "),
	}
}

func appendTrimmed(list []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		list = append(list, s)
	}
	return list
}

// Plugin return codes by resulting state. Codes outside the table are
// CRITICAL for services and DOWN for hosts.
var (
	serviceStates = map[int]int{
		0: objects.ServiceOK,
		1: objects.ServiceWarning,
		2: objects.ServiceCritical,
		3: objects.ServiceUnknown,
	}
	// A WARNING from a host check still means the host is up.
	hostStates = map[int]int{
		0: objects.HostUp,
		1: objects.HostUp,
	}
	passiveHostStates = map[int]int{
		0: objects.HostUp,
		1: objects.HostDown,
		2: objects.HostUnreachable,
	}
)

// ServiceState maps an active or passive service result to a state.
// Timeouts take timeoutState; a plugin that did not exit normally is
// CRITICAL.
func ServiceState(cr *objects.CheckResult, timeoutState int) int {
	switch {
	case cr.EarlyTimeout:
		return timeoutState
	case cr.Abnormal:
		return objects.ServiceCritical
	}
	if st, ok := serviceStates[cr.ReturnCode]; ok {
		return st
	}
	return objects.ServiceCritical
}

// HostState maps an active host result to UP or DOWN. Reachability is
// decided later from the parents.
func HostState(cr *objects.CheckResult) int {
	if cr.EarlyTimeout || cr.Abnormal {
		return objects.HostDown
	}
	if st, ok := hostStates[cr.ReturnCode]; ok {
		return st
	}
	return objects.HostDown
}

// PassiveHostState takes a submitted host return code at face value.
func PassiveHostState(returnCode int) int {
	if st, ok := passiveHostStates[returnCode]; ok {
		return st
	}
	return objects.HostDown
}

var missingOutput = map[int]string{
	126: "(Return code of 126 is out of bounds - plugin may not be executable)",
	127: "(Return code of 127 is out of bounds - plugin may be missing)",
}

// ResultOutput returns the plugin output, or a placeholder explaining why
// there is none.
func ResultOutput(cr *objects.CheckResult) string {
	if cr.Output != "" {
		return cr.Output
	}
	if msg, ok := missingOutput[cr.ReturnCode]; ok {
		return msg
	}
	return "(No output returned from plugin)"
}
