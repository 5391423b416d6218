package resolve

import (
	"strconv"
	"strings"

	"github.com/centreon/centreon-engine-sub012/internal/config"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

func attrOr(d *config.Definition, key, def string) string {
	if v, ok := d.Get(key); ok && v != "" {
		return v
	}
	return def
}

func (rv *resolver) attrBool(d *config.Definition, key string, def bool) bool {
	v, ok := d.Get(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	rv.errorf(d, "%s: invalid boolean %q", key, v)
	return def
}

func (rv *resolver) attrInt(d *config.Definition, key string, def int) int {
	v, ok := d.Get(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		rv.errorf(d, "%s: invalid integer %q", key, v)
		return def
	}
	return n
}

func (rv *resolver) attrFloat(d *config.Definition, key string, def float64) float64 {
	v, ok := d.Get(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		rv.errorf(d, "%s: invalid number %q", key, v)
		return def
	}
	return f
}

// attrOptions parses a letter list; def applies when the key is absent.
func attrOptions(d *config.Definition, key string, host bool, def uint32) uint32 {
	v, ok := d.Get(key)
	if !ok || v == "" {
		return def
	}
	return objects.ParseOptions(v, host)
}

// initialState maps o/d/u (hosts) or o/w/c/u (services) to a state.
func (rv *resolver) initialState(d *config.Definition, host bool) int {
	v, ok := d.Get("initial_state")
	if !ok || v == "" {
		return 0
	}
	switch strings.ToLower(v)[0] {
	case 'o':
		return 0
	case 'u':
		if host {
			return objects.HostUnreachable
		}
		return objects.ServiceUnknown
	case 'd':
		if host {
			return objects.HostDown
		}
	case 'w':
		if !host {
			return objects.ServiceWarning
		}
	case 'c':
		if !host {
			return objects.ServiceCritical
		}
	}
	rv.errorf(d, "initial_state: invalid value %q", v)
	return 0
}

// splitCommand separates "check_http!80!/health" into the command name
// and its "!"-joined arguments.
func splitCommand(s string) (name, args string) {
	if i := strings.IndexByte(s, '!'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

func copyVars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

const illegalChars = "`~!$%^&*|'\"<>?,()="

func hasIllegalChars(s string) bool {
	return strings.ContainsAny(s, illegalChars)
}
