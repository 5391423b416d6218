// Package perfdata parses plugin performance data and writes it to the
// performance-data file.
package perfdata

import (
	"fmt"
	"strconv"
	"strings"
)

// Metric is one label=value[UOM];[warn];[crit];[min];[max] item.
// Thresholds are kept verbatim since they may be ranges ("10:20", "@5:").
type Metric struct {
	Label string
	Value float64
	// Unknown is set when the plugin reported "U" instead of a number.
	Unknown bool
	UOM     string
	Warn    string
	Crit    string
	Min     string
	Max     string
}

func (m Metric) String() string {
	label := m.Label
	if strings.ContainsAny(label, " =") {
		label = "'" + label + "'"
	}
	value := "U"
	if !m.Unknown {
		value = strconv.FormatFloat(m.Value, 'f', -1, 64)
	}
	s := label + "=" + value + m.UOM
	tail := []string{m.Warn, m.Crit, m.Min, m.Max}
	last := -1
	for i, v := range tail {
		if v != "" {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		s += ";" + tail[i]
	}
	return s
}

// Parse splits a performance-data string into metrics. Labels may be
// single-quoted to contain spaces. An empty string yields no metrics.
func Parse(s string) ([]Metric, error) {
	var metrics []Metric
	rest := strings.TrimSpace(s)
	for rest != "" {
		var label string
		if rest[0] == '\'' {
			end := strings.Index(rest[1:], "'")
			if end < 0 {
				return nil, fmt.Errorf("perfdata: unterminated quoted label in %q", rest)
			}
			label = rest[1 : end+1]
			rest = rest[end+2:]
			if !strings.HasPrefix(rest, "=") {
				return nil, fmt.Errorf("perfdata: missing '=' after label %q", label)
			}
			rest = rest[1:]
		} else {
			eq := strings.IndexByte(rest, '=')
			if eq < 0 {
				return nil, fmt.Errorf("perfdata: missing '=' in %q", rest)
			}
			label = rest[:eq]
			if strings.ContainsAny(label, " \t") {
				return nil, fmt.Errorf("perfdata: unquoted label with whitespace %q", label)
			}
			rest = rest[eq+1:]
		}
		if label == "" {
			return nil, fmt.Errorf("perfdata: empty label")
		}

		item := rest
		if sp := strings.IndexAny(rest, " \t"); sp >= 0 {
			item, rest = rest[:sp], strings.TrimLeft(rest[sp:], " \t")
		} else {
			rest = ""
		}

		m, err := parseItem(label, item)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

func parseItem(label, item string) (Metric, error) {
	fields := strings.Split(item, ";")
	if len(fields) > 5 {
		return Metric{}, fmt.Errorf("perfdata: %s has too many fields", label)
	}
	m := Metric{Label: label}

	raw := fields[0]
	if raw == "U" {
		m.Unknown = true
	} else {
		i := numericPrefix(raw)
		if i == 0 {
			return Metric{}, fmt.Errorf("perfdata: %s has non-numeric value %q", label, raw)
		}
		v, err := strconv.ParseFloat(strings.Replace(raw[:i], ",", ".", 1), 64)
		if err != nil {
			return Metric{}, fmt.Errorf("perfdata: %s: %w", label, err)
		}
		m.Value = v
		m.UOM = raw[i:]
	}

	dst := []*string{&m.Warn, &m.Crit, &m.Min, &m.Max}
	for i, f := range fields[1:] {
		*dst[i] = f
	}
	return m, nil
}

// numericPrefix returns the length of the leading number in s.
func numericPrefix(s string) int {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	digits := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.' || s[i] == ',') {
		if s[i] >= '0' && s[i] <= '9' {
			digits++
		}
		i++
	}
	if digits == 0 {
		return 0
	}
	return i
}

// Validate reports whether s parses cleanly.
func Validate(s string) error {
	_, err := Parse(s)
	return err
}
