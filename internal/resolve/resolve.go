// Package resolve links an unresolved definition set into a live Registry.
// Problems are counted and collected rather than stopping at the first, so
// one pass reports everything wrong with a configuration.
package resolve

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/centreon/centreon-engine-sub012/internal/config"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// Result is the outcome of a resolution pass. A registry must not be
// activated unless Errors is zero.
type Result struct {
	Warnings int
	Errors   int
	// Err combines every error message, Warn every warning.
	Err  error
	Warn error
}

// OK reports whether the resolved registry may be activated.
func (r Result) OK() bool { return r.Errors == 0 }

type resolver struct {
	ds  *config.Definitions
	reg *objects.Registry
	res Result
}

func (rv *resolver) errorf(d *config.Definition, format string, args ...interface{}) {
	rv.res.Errors++
	rv.res.Err = multierr.Append(rv.res.Err, located(d, format, args...))
}

func (rv *resolver) warnf(d *config.Definition, format string, args ...interface{}) {
	rv.res.Warnings++
	rv.res.Warn = multierr.Append(rv.res.Warn, located(d, format, args...))
}

func located(d *config.Definition, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if d != nil {
		msg = d.Source + ": " + msg
	}
	return errors.New(msg)
}

// Resolve builds a Registry from ds. The registry is returned even when
// errors were found so that callers can report on it.
func Resolve(ds *config.Definitions) (*objects.Registry, Result) {
	rv := &resolver{ds: ds, reg: objects.NewRegistry()}
	rv.timeperiods()
	rv.commands()
	rv.contacts()
	rv.contactGroups()
	rv.hosts()
	rv.services()
	rv.escalations()
	rv.dependencies()
	rv.checkCycles()
	return rv.reg, rv.res
}

// name reads the identifying attribute of d and validates its characters.
func (rv *resolver) name(d *config.Definition, key string) (string, bool) {
	v := attrOr(d, key, "")
	if v == "" {
		rv.errorf(d, "%s definition has no %s", d.Type, key)
		return "", false
	}
	if hasIllegalChars(v) {
		rv.errorf(d, "%s '%s' contains illegal characters", key, v)
		return "", false
	}
	return v, true
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

func (rv *resolver) timeperiods() {
	defs := rv.ds.OfType(config.TypeTimeperiod)
	for _, d := range defs {
		name, ok := rv.name(d, "timeperiod_name")
		if !ok {
			continue
		}
		tp := timeperiod.New(name)
		tp.Alias = attrOr(d, "alias", name)
		for key, val := range d.Attrs {
			switch key {
			case "timeperiod_name", "alias", "name", "use", "register", "exclude":
				continue
			}
			var err error
			if day, isDay := weekdays[key]; isDay {
				err = tp.SetDay(day, val)
			} else {
				err = tp.AddException(key + " " + val)
			}
			if err != nil {
				rv.errorf(d, "%v", err)
			}
		}
		if err := rv.reg.AddTimeperiod(tp); err != nil {
			rv.errorf(d, "%v", err)
		}
	}
	// Exclusions may name periods defined later in the document.
	for _, d := range defs {
		tp := rv.reg.Timeperiod(attrOr(d, "timeperiod_name", ""))
		if tp == nil {
			continue
		}
		for _, ex := range config.SplitList(attrOr(d, "exclude", "")) {
			other := rv.reg.Timeperiod(ex)
			if other == nil {
				rv.errorf(d, "excluded timeperiod '%s' not found", ex)
				continue
			}
			tp.Exclusions = append(tp.Exclusions, other)
		}
	}
}

func (rv *resolver) commands() {
	for _, d := range rv.ds.OfType(config.TypeCommand) {
		name, ok := rv.name(d, "command_name")
		if !ok {
			continue
		}
		line := attrOr(d, "command_line", "")
		if line == "" {
			rv.errorf(d, "command '%s' has no command_line", name)
			continue
		}
		if err := rv.reg.AddCommand(&objects.Command{Name: name, CommandLine: line}); err != nil {
			rv.errorf(d, "%v", err)
		}
	}
}

// period resolves an optional time-period reference.
func (rv *resolver) period(d *config.Definition, key string) (*timeperiod.Timeperiod, bool) {
	v := attrOr(d, key, "")
	if v == "" {
		return nil, true
	}
	tp := rv.reg.Timeperiod(v)
	if tp == nil {
		rv.errorf(d, "%s: timeperiod '%s' not found", key, v)
		return nil, false
	}
	return tp, true
}

func (rv *resolver) commandList(d *config.Definition, key string) []*objects.Command {
	var out []*objects.Command
	for _, v := range config.SplitList(attrOr(d, key, "")) {
		name, _ := splitCommand(v)
		cmd := rv.reg.Command(name)
		if cmd == nil {
			rv.errorf(d, "%s: command '%s' not found", key, name)
			continue
		}
		out = append(out, cmd)
	}
	return out
}

func (rv *resolver) contacts() {
	for _, d := range rv.ds.OfType(config.TypeContact) {
		name, ok := rv.name(d, "contact_name")
		if !ok {
			continue
		}
		ct := &objects.Contact{
			Name:                        name,
			Alias:                       attrOr(d, "alias", name),
			Email:                       attrOr(d, "email", ""),
			Pager:                       attrOr(d, "pager", ""),
			HostNotificationOptions:     attrOptions(d, "host_notification_options", true, objects.OptAll),
			ServiceNotificationOptions:  attrOptions(d, "service_notification_options", false, objects.OptAll),
			HostNotificationsEnabled:    rv.attrBool(d, "host_notifications_enabled", true),
			ServiceNotificationsEnabled: rv.attrBool(d, "service_notifications_enabled", true),
			HostNotificationCommands:    rv.commandList(d, "host_notification_commands"),
			ServiceNotificationCommands: rv.commandList(d, "service_notification_commands"),
			CustomVars:                  copyVars(d.CustomVars),
		}
		for i := range ct.Addresses {
			ct.Addresses[i] = attrOr(d, fmt.Sprintf("address%d", i+1), "")
		}
		ct.HostNotificationPeriod, _ = rv.period(d, "host_notification_period")
		ct.ServiceNotificationPeriod, _ = rv.period(d, "service_notification_period")
		if err := rv.reg.AddContact(ct); err != nil {
			rv.errorf(d, "%v", err)
		}
	}
}

func (rv *resolver) contactGroups() {
	defs := rv.ds.OfType(config.TypeContactGroup)
	for _, d := range defs {
		name, ok := rv.name(d, "contactgroup_name")
		if !ok {
			continue
		}
		cg := &objects.ContactGroup{Name: name, Alias: attrOr(d, "alias", name)}
		if err := rv.reg.AddContactGroup(cg); err != nil {
			rv.errorf(d, "%v", err)
		}
	}
	for _, d := range defs {
		cg := rv.reg.ContactGroup(attrOr(d, "contactgroup_name", ""))
		if cg == nil {
			continue
		}
		for _, m := range config.SplitList(attrOr(d, "members", "")) {
			ct := rv.reg.Contact(m)
			if ct == nil {
				rv.errorf(d, "contact '%s' in contactgroup '%s' not found", m, cg.Name)
				continue
			}
			joinGroup(cg, ct)
		}
	}
	// The contact side of the membership.
	for _, d := range rv.ds.OfType(config.TypeContact) {
		ct := rv.reg.Contact(attrOr(d, "contact_name", ""))
		if ct == nil {
			continue
		}
		for _, g := range config.SplitList(attrOr(d, "contactgroups", "")) {
			cg := rv.reg.ContactGroup(g)
			if cg == nil {
				rv.errorf(d, "contactgroup '%s' not found", g)
				continue
			}
			joinGroup(cg, ct)
		}
	}
}

func joinGroup(cg *objects.ContactGroup, ct *objects.Contact) {
	for _, m := range cg.Members {
		if m == ct {
			return
		}
	}
	cg.Members = append(cg.Members, ct)
	ct.ContactGroups = append(ct.ContactGroups, cg)
}

func (rv *resolver) contactRefs(d *config.Definition) ([]*objects.Contact, []*objects.ContactGroup, bool) {
	ok := true
	var cts []*objects.Contact
	for _, n := range config.SplitList(attrOr(d, "contacts", "")) {
		ct := rv.reg.Contact(n)
		if ct == nil {
			rv.errorf(d, "contact '%s' not found", n)
			ok = false
			continue
		}
		cts = append(cts, ct)
	}
	var cgs []*objects.ContactGroup
	for _, n := range config.SplitList(attrOr(d, "contact_groups", "")) {
		cg := rv.reg.ContactGroup(n)
		if cg == nil {
			rv.errorf(d, "contactgroup '%s' not found", n)
			ok = false
			continue
		}
		cgs = append(cgs, cg)
	}
	return cts, cgs, ok
}

// common fills the settings hosts and services share.
func (rv *resolver) common(d *config.Definition, c *objects.Checkable) {
	host := c.IsHost()
	c.DisplayName = attrOr(d, "display_name", "")
	c.CheckInterval = rv.attrFloat(d, "check_interval", c.CheckInterval)
	c.RetryInterval = rv.attrFloat(d, "retry_interval", c.RetryInterval)
	c.MaxCheckAttempts = rv.attrInt(d, "max_check_attempts", c.MaxCheckAttempts)
	c.InitialState = rv.initialState(d, host)
	c.ActiveChecksEnabled = rv.attrBool(d, "active_checks_enabled", c.ActiveChecksEnabled)
	c.PassiveChecksEnabled = rv.attrBool(d, "passive_checks_enabled", c.PassiveChecksEnabled)
	c.CheckFreshness = rv.attrBool(d, "check_freshness", false)
	c.FreshnessThreshold = rv.attrInt(d, "freshness_threshold", 0)
	c.LowFlapThreshold = rv.attrFloat(d, "low_flap_threshold", 0)
	c.HighFlapThreshold = rv.attrFloat(d, "high_flap_threshold", 0)
	c.FlapDetectionEnabled = rv.attrBool(d, "flap_detection_enabled", c.FlapDetectionEnabled)
	c.FlapDetectionOptions = attrOptions(d, "flap_detection_options", host, c.FlapDetectionOptions)
	c.NotificationOptions = attrOptions(d, "notification_options", host, c.NotificationOptions)
	c.NotificationsEnabled = rv.attrBool(d, "notifications_enabled", c.NotificationsEnabled)
	c.NotificationInterval = rv.attrFloat(d, "notification_interval", c.NotificationInterval)
	c.FirstNotificationDelay = rv.attrFloat(d, "first_notification_delay", 0)
	c.ProcessPerfData = rv.attrBool(d, "process_perf_data", true)
	c.CustomVars = copyVars(d.CustomVars)

	if v := attrOr(d, "check_command", ""); v != "" {
		name, args := splitCommand(v)
		if c.CheckCommand = rv.reg.Command(name); c.CheckCommand == nil {
			rv.errorf(d, "check_command '%s' not found", name)
		}
		c.CheckCommandArgs = args
	} else if !host {
		rv.errorf(d, "service '%s' has no check_command", c)
	}
	c.CheckPeriod, _ = rv.period(d, "check_period")
	c.NotificationPeriod, _ = rv.period(d, "notification_period")
	c.Contacts, c.ContactGroups, _ = rv.contactRefs(d)

	switch {
	case c.CheckInterval < 0:
		rv.errorf(d, "%s: check_interval must not be negative", c)
	case c.RetryInterval <= 0:
		rv.errorf(d, "%s: retry_interval must be positive", c)
	case c.NotificationInterval < 0:
		rv.errorf(d, "%s: notification_interval must not be negative", c)
	case c.MaxCheckAttempts < 1:
		rv.errorf(d, "%s: max_check_attempts must be at least 1", c)
	}
	if c.NotificationsEnabled && len(c.Contacts) == 0 && len(c.ContactGroups) == 0 {
		rv.warnf(d, "%s has no contacts or contact groups", c)
	}
}

func (rv *resolver) hosts() {
	defs := rv.ds.OfType(config.TypeHost)
	for _, d := range defs {
		name, ok := rv.name(d, "host_name")
		if !ok {
			continue
		}
		h := objects.NewHost(name)
		h.Alias = attrOr(d, "alias", name)
		h.Address = attrOr(d, "address", name)
		rv.common(d, h)
		if err := rv.reg.AddHost(h); err != nil {
			rv.errorf(d, "%v", err)
		}
	}
	for _, d := range defs {
		h := rv.reg.Host(attrOr(d, "host_name", ""))
		if h == nil {
			continue
		}
		for _, p := range config.SplitList(attrOr(d, "parents", "")) {
			parent := rv.reg.Host(p)
			if parent == nil {
				rv.errorf(d, "parent host '%s' of '%s' not found", p, h.HostName)
				continue
			}
			rv.reg.AddParent(h, parent)
		}
	}
}

// services creates one service per host named in host_name.
func (rv *resolver) services() {
	defs := rv.ds.OfType(config.TypeService)
	for _, d := range defs {
		desc, ok := rv.name(d, "service_description")
		if !ok {
			continue
		}
		hosts := config.SplitList(attrOr(d, "host_name", ""))
		if len(hosts) == 0 {
			rv.errorf(d, "service '%s' has no host_name", desc)
			continue
		}
		for _, hn := range hosts {
			if rv.reg.Host(hn) == nil {
				rv.errorf(d, "host '%s' of service '%s' not found", hn, desc)
				continue
			}
			svc := objects.NewService(hn, desc)
			svc.IsVolatile = rv.attrBool(d, "is_volatile", false)
			rv.common(d, svc)
			if err := rv.reg.AddService(svc); err != nil {
				rv.errorf(d, "%v", err)
			}
		}
	}
	// parents is a list of host,description pairs.
	for _, d := range defs {
		pairs := config.SplitList(attrOr(d, "parents", ""))
		if len(pairs) == 0 {
			continue
		}
		if len(pairs)%2 != 0 {
			rv.errorf(d, "parents must list host,description pairs")
			continue
		}
		desc := attrOr(d, "service_description", "")
		for _, hn := range config.SplitList(attrOr(d, "host_name", "")) {
			svc := rv.reg.Service(hn, desc)
			if svc == nil {
				continue
			}
			for i := 0; i < len(pairs); i += 2 {
				parent := rv.reg.Service(pairs[i], pairs[i+1])
				if parent == nil {
					rv.errorf(d, "parent service '%s;%s' not found", pairs[i], pairs[i+1])
					continue
				}
				svc.ServiceParents = append(svc.ServiceParents, parent)
			}
		}
	}
}

// escalations links escalation definitions. One with any unresolved
// reference is counted as an error and left out of the live set.
func (rv *resolver) escalations() {
	for _, typ := range []string{config.TypeHostEscalation, config.TypeServiceEscalation} {
		host := typ == config.TypeHostEscalation
		for _, d := range rv.ds.OfType(typ) {
			cts, cgs, refsOK := rv.contactRefs(d)
			period, periodOK := rv.period(d, "escalation_period")
			if !refsOK || !periodOK {
				continue
			}
			desc := attrOr(d, "service_description", "")
			hosts := config.SplitList(attrOr(d, "host_name", ""))
			if len(hosts) == 0 || (!host && desc == "") {
				rv.errorf(d, "escalation has no target")
				continue
			}
			for _, hn := range hosts {
				e := &objects.Escalation{
					HostName:             hn,
					ContactGroups:        cgs,
					Contacts:             cts,
					FirstNotification:    rv.attrInt(d, "first_notification", 1),
					LastNotification:     rv.attrInt(d, "last_notification", 0),
					NotificationInterval: rv.attrFloat(d, "notification_interval", -1),
					EscalationPeriod:     period,
					EscalationOptions:    attrOptions(d, "escalation_options", host, objects.OptAll),
				}
				if host {
					e.Checkable = rv.reg.Host(hn)
				} else {
					e.Description = desc
					e.Checkable = rv.reg.Service(hn, desc)
				}
				if err := rv.reg.AddEscalation(e); err != nil {
					rv.errorf(d, "%v", err)
				}
			}
		}
	}
}

func (rv *resolver) dependencies() {
	for _, typ := range []string{config.TypeHostDependency, config.TypeServiceDependency} {
		host := typ == config.TypeHostDependency
		for _, d := range rv.ds.OfType(typ) {
			period, ok := rv.period(d, "dependency_period")
			if !ok {
				continue
			}
			masters := config.SplitList(attrOr(d, "host_name", ""))
			dependents := config.SplitList(attrOr(d, "dependent_host_name", ""))
			if !host && len(dependents) == 0 {
				dependents = masters
			}
			if len(masters) == 0 || len(dependents) == 0 {
				rv.errorf(d, "dependency needs host_name and dependent_host_name")
				continue
			}
			desc := attrOr(d, "service_description", "")
			depDesc := attrOr(d, "dependent_service_description", "")
			inherits := rv.attrBool(d, "inherits_parent", false)
			exec := attrOptions(d, "execution_failure_options", host, objects.OptNone)
			notif := attrOptions(d, "notification_failure_options", host, objects.OptNone)

			for _, mh := range masters {
				master := rv.lookup(host, mh, desc)
				if master == nil {
					rv.errorf(d, "dependency master '%s' not found", target(mh, desc))
					continue
				}
				for _, dh := range dependents {
					dep := rv.lookup(host, dh, depDesc)
					if dep == nil {
						rv.errorf(d, "dependent '%s' not found", target(dh, depDesc))
						continue
					}
					if dep == master {
						rv.errorf(d, "'%s' cannot depend on itself", dep)
						continue
					}
					err := rv.reg.AddDependency(&objects.Dependency{
						Dependent:                  dep,
						Master:                     master,
						DependencyPeriod:           period,
						InheritsParent:             inherits,
						ExecutionFailureOptions:    exec,
						NotificationFailureOptions: notif,
					})
					if err != nil {
						rv.errorf(d, "%v", err)
					}
				}
			}
		}
	}
}

func (rv *resolver) lookup(host bool, hostName, desc string) *objects.Checkable {
	if host {
		return rv.reg.Host(hostName)
	}
	return rv.reg.Service(hostName, desc)
}

func target(hostName, desc string) string {
	if desc == "" {
		return hostName
	}
	return strings.Join([]string{hostName, desc}, ";")
}
