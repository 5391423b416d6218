// Package macros expands $MACRO$ references in check and notification
// command lines.
package macros

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// Context is what one expansion can see.
type Context struct {
	Checkable *objects.Checkable
	Contact   *objects.Contact
	// Args are the !-separated arguments of the command definition.
	Args []string
	// Extra carries per-call macros such as NOTIFICATIONTYPE.
	Extra map[string]string
	Now   time.Time
}

func (mc *Context) host() *objects.Checkable {
	if mc == nil || mc.Checkable == nil {
		return nil
	}
	if mc.Checkable.IsHost() {
		return mc.Checkable
	}
	return mc.Checkable.Host
}

func (mc *Context) service() *objects.Checkable {
	if mc == nil || mc.Checkable == nil || !mc.Checkable.IsService() {
		return nil
	}
	return mc.Checkable
}

// Expander resolves $MACRO$ references in command lines.
type Expander struct {
	Cfg *objects.Config
	// Reg resolves on-demand macros like $HOSTSTATE:web01$. May be nil.
	Reg *objects.Registry
}

// Expand replaces all $MACRO$ references in the input string. Unknown
// macros are left as-is and $$ is a literal dollar.
func (e *Expander) Expand(input string, mc *Context) string {
	if mc == nil {
		mc = &Context{}
	}
	if mc.Now.IsZero() {
		mc.Now = time.Now()
	}

	var result strings.Builder
	result.Grow(len(input))

	i := 0
	for i < len(input) {
		if input[i] != '$' {
			result.WriteByte(input[i])
			i++
			continue
		}

		if i+1 < len(input) && input[i+1] == '$' {
			result.WriteByte('$')
			i += 2
			continue
		}

		end := strings.IndexByte(input[i+1:], '$')
		if end < 0 {
			result.WriteByte('$')
			i++
			continue
		}
		end += i + 1

		name := input[i+1 : end]
		if resolved, ok := e.resolve(name, mc); ok {
			result.WriteString(resolved)
		} else {
			result.WriteString(input[i : end+1])
		}
		i = end + 1
	}

	return result.String()
}

func customVar(vars map[string]string, name string) string {
	if v, ok := vars[name]; ok {
		return v
	}
	for k, v := range vars {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (e *Expander) resolve(name string, mc *Context) (string, bool) {
	if v, ok := mc.Extra[name]; ok {
		return v, true
	}

	// $ARGn$ (1-32)
	if strings.HasPrefix(name, "ARG") {
		n, err := strconv.Atoi(name[3:])
		if err == nil && n >= 1 && n <= 32 {
			if n-1 < len(mc.Args) {
				return mc.Args[n-1], true
			}
			return "", true
		}
	}

	// $USERn$ (1-256)
	if strings.HasPrefix(name, "USER") && e.Cfg != nil {
		n, err := strconv.Atoi(name[4:])
		if err == nil && n >= 1 && n <= len(e.Cfg.UserMacros) {
			return e.Cfg.UserMacros[n-1], true
		}
	}

	switch {
	case strings.HasPrefix(name, "_HOST"):
		if h := mc.host(); h != nil {
			return customVar(h.CustomVars, name[5:]), true
		}
		return "", true
	case strings.HasPrefix(name, "_SERVICE"):
		if s := mc.service(); s != nil {
			return customVar(s.CustomVars, name[8:]), true
		}
		return "", true
	case strings.HasPrefix(name, "_CONTACT"):
		if mc.Contact != nil {
			return customVar(mc.Contact.CustomVars, name[8:]), true
		}
		return "", true
	}

	if strings.Contains(name, ":") {
		return e.resolveOnDemand(name, mc.Now)
	}

	if strings.HasPrefix(name, "CONTACT") {
		return contactMacro(name, mc.Contact)
	}
	if v, ok := objectMacro(hostMacros, name, mc.host(), mc.Now); ok {
		return v, true
	}
	if v, ok := objectMacro(serviceMacros, name, mc.service(), mc.Now); ok {
		return v, true
	}

	now := mc.Now
	switch name {
	case "LONGDATETIME":
		return now.Format("Mon Jan 02 15:04:05 MST 2006"), true
	case "SHORTDATETIME":
		return now.Format("01-02-2006 15:04:05"), true
	case "DATE":
		return now.Format("01-02-2006"), true
	case "TIME":
		return now.Format("15:04:05"), true
	case "TIMET":
		return strconv.FormatInt(now.Unix(), 10), true
	case "PROCESSSTARTTIME":
		if e.Cfg != nil && !e.Cfg.ProgramStart.IsZero() {
			return strconv.FormatInt(e.Cfg.ProgramStart.Unix(), 10), true
		}
		return strconv.FormatInt(now.Unix(), 10), true
	}
	return "", false
}

func contactMacro(name string, ct *objects.Contact) (string, bool) {
	if ct == nil {
		return "", true
	}
	switch name {
	case "CONTACTNAME":
		return ct.Name, true
	case "CONTACTALIAS":
		return ct.Alias, true
	case "CONTACTEMAIL":
		return ct.Email, true
	case "CONTACTPAGER":
		return ct.Pager, true
	}
	if strings.HasPrefix(name, "CONTACTADDRESS") {
		n, err := strconv.Atoi(name[len("CONTACTADDRESS"):])
		if err == nil && n >= 1 && n <= objects.MaxContactAddresses {
			return ct.Addresses[n-1], true
		}
	}
	return "", false
}

func unix(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

type macroFunc func(c *objects.Checkable, now time.Time) string

// Macros common to hosts and services; %s is HOST or SERVICE.
var sharedMacros = map[string]macroFunc{
	"%sSTATE":     func(c *objects.Checkable, _ time.Time) string { return c.StateName(c.CurrentState) },
	"%sSTATEID":   func(c *objects.Checkable, _ time.Time) string { return strconv.Itoa(c.CurrentState) },
	"LAST%sSTATE": func(c *objects.Checkable, _ time.Time) string { return c.StateName(c.LastState) },
	"%sSTATETYPE": func(c *objects.Checkable, _ time.Time) string { return objects.StateTypeName(c.StateType) },
	"%sATTEMPT":   func(c *objects.Checkable, _ time.Time) string { return strconv.Itoa(c.CurrentAttempt) },
	"MAX%sATTEMPTS": func(c *objects.Checkable, _ time.Time) string {
		return strconv.Itoa(c.MaxCheckAttempts)
	},
	"%sOUTPUT":      func(c *objects.Checkable, _ time.Time) string { return c.PluginOutput },
	"LONG%sOUTPUT":  func(c *objects.Checkable, _ time.Time) string { return c.LongPluginOutput },
	"%sPERFDATA":    func(c *objects.Checkable, _ time.Time) string { return c.PerfData },
	"%sDISPLAYNAME": func(c *objects.Checkable, _ time.Time) string { return displayName(c) },
	"%sCHECKCOMMAND": func(c *objects.Checkable, _ time.Time) string {
		if c.CheckCommand == nil {
			return ""
		}
		return c.CheckCommand.Name
	},
	"%sLATENCY":       func(c *objects.Checkable, _ time.Time) string { return fmt.Sprintf("%.3f", c.Latency) },
	"%sEXECUTIONTIME": func(c *objects.Checkable, _ time.Time) string { return fmt.Sprintf("%.3f", c.ExecutionTime) },
	"%sDURATION": func(c *objects.Checkable, now time.Time) string {
		return formatDuration(now.Sub(c.LastStateChange))
	},
	"%sDURATIONSEC": func(c *objects.Checkable, now time.Time) string {
		return strconv.FormatInt(int64(now.Sub(c.LastStateChange).Seconds()), 10)
	},
	"%sDOWNTIME":        func(c *objects.Checkable, _ time.Time) string { return strconv.Itoa(c.ScheduledDowntimeDepth) },
	"%sPERCENTCHANGE":   func(c *objects.Checkable, _ time.Time) string { return fmt.Sprintf("%.2f", c.PercentStateChange) },
	"LAST%sCHECK":       func(c *objects.Checkable, _ time.Time) string { return unix(c.LastCheck) },
	"LAST%sSTATECHANGE": func(c *objects.Checkable, _ time.Time) string { return unix(c.LastStateChange) },
	"%sNOTIFICATIONNUMBER": func(c *objects.Checkable, _ time.Time) string {
		return strconv.Itoa(c.CurrentNotificationNumber)
	},
	"%sNOTIFICATIONID": func(c *objects.Checkable, _ time.Time) string { return uitoa(c.CurrentNotificationID) },
	"%sEVENTID":        func(c *objects.Checkable, _ time.Time) string { return uitoa(c.CurrentEventID) },
	"%sPROBLEMID":      func(c *objects.Checkable, _ time.Time) string { return uitoa(c.CurrentProblemID) },
}

var hostMacros = map[string]macroFunc{
	"HOSTNAME":    func(c *objects.Checkable, _ time.Time) string { return c.HostName },
	"HOSTALIAS":   func(c *objects.Checkable, _ time.Time) string { return c.Alias },
	"HOSTADDRESS": func(c *objects.Checkable, _ time.Time) string { return c.Address },

	"LASTHOSTUP":          lastTimeIn(objects.HostUp),
	"LASTHOSTDOWN":        lastTimeIn(objects.HostDown),
	"LASTHOSTUNREACHABLE": lastTimeIn(objects.HostUnreachable),

	"TOTALHOSTSERVICES":         func(c *objects.Checkable, _ time.Time) string { return strconv.Itoa(len(c.Services)) },
	"TOTALHOSTSERVICESOK":       servicesIn(objects.ServiceOK),
	"TOTALHOSTSERVICESWARNING":  servicesIn(objects.ServiceWarning),
	"TOTALHOSTSERVICESCRITICAL": servicesIn(objects.ServiceCritical),
	"TOTALHOSTSERVICESUNKNOWN":  servicesIn(objects.ServiceUnknown),
}

var serviceMacros = map[string]macroFunc{
	"SERVICEDESC": func(c *objects.Checkable, _ time.Time) string { return c.Description },
	"SERVICEISVOLATILE": func(c *objects.Checkable, _ time.Time) string {
		if c.IsVolatile {
			return "1"
		}
		return "0"
	},

	"LASTSERVICEOK":       lastTimeIn(objects.ServiceOK),
	"LASTSERVICEWARNING":  lastTimeIn(objects.ServiceWarning),
	"LASTSERVICECRITICAL": lastTimeIn(objects.ServiceCritical),
	"LASTSERVICEUNKNOWN":  lastTimeIn(objects.ServiceUnknown),
}

func init() {
	for tmpl, fn := range sharedMacros {
		hostMacros[fmt.Sprintf(tmpl, "HOST")] = fn
		serviceMacros[fmt.Sprintf(tmpl, "SERVICE")] = fn
	}
}

func lastTimeIn(state int) macroFunc {
	return func(c *objects.Checkable, _ time.Time) string { return unix(c.LastTimeIn[state]) }
}

func servicesIn(state int) macroFunc {
	return func(c *objects.Checkable, _ time.Time) string {
		return strconv.Itoa(countByState(c.Services, state))
	}
}

func displayName(c *objects.Checkable) string {
	switch {
	case c.DisplayName != "":
		return c.DisplayName
	case c.IsHost():
		return c.HostName
	}
	return c.Description
}

func uitoa(v uint64) string { return strconv.FormatUint(v, 10) }

func objectMacro(table map[string]macroFunc, name string, c *objects.Checkable, now time.Time) (string, bool) {
	if c == nil {
		return "", false
	}
	fn, ok := table[name]
	if !ok {
		return "", false
	}
	return fn(c, now), true
}

// resolveOnDemand handles $HOSTSTATE:web01$ and $SERVICESTATE:web01:HTTP$.
func (e *Expander) resolveOnDemand(name string, now time.Time) (string, bool) {
	if e.Reg == nil {
		return "", false
	}
	base, target, ok := strings.Cut(name, ":")
	if !ok {
		return "", false
	}

	if strings.HasPrefix(base, "HOST") {
		host := e.Reg.Host(target)
		if host == nil {
			return "", false
		}
		return objectMacro(hostMacros, base, host, now)
	}
	if strings.HasPrefix(base, "SERVICE") {
		hostName, desc, ok := strings.Cut(target, ":")
		if !ok {
			return "", false
		}
		svc := e.Reg.Service(hostName, desc)
		if svc == nil {
			return "", false
		}
		return objectMacro(serviceMacros, base, svc, now)
	}
	return "", false
}

// SplitCommandArgs splits "command_name!arg1!arg2" into the command name
// and its arguments.
func SplitCommandArgs(checkCommand string) (string, []string) {
	parts := strings.Split(checkCommand, "!")
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts[0], parts[1:]
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
}

func countByState(svcs []*objects.Checkable, state int) int {
	n := 0
	for _, s := range svcs {
		if s.CurrentState == state && s.HasBeenChecked {
			n++
		}
	}
	return n
}
