package notify

import (
	"strconv"
	"strings"
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/broker"
	"github.com/centreon/centreon-engine-sub012/internal/dependency"
	"github.com/centreon/centreon-engine-sub012/internal/downtime"
	"github.com/centreon/centreon-engine-sub012/internal/macros"
	"github.com/centreon/centreon-engine-sub012/internal/metrics"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// Logger writes notification log lines.
type Logger interface {
	Notification(contact string, c *objects.Checkable, ntype int, cmdName, author, comment string)
}

// Engine decides whether a checkable should notify and dispatches the
// notification to its contacts. It runs on the scheduler loop only.
type Engine struct {
	Cfg      *objects.Config
	Log      Logger
	Macros   *macros.Expander
	Runner   Runner
	Comments *downtime.Comments
	Broker   *broker.Broker
	Metrics  *metrics.Collector
}

// New creates a notification engine.
func New(cfg *objects.Config, log Logger, expander *macros.Expander, runner Runner) *Engine {
	return &Engine{Cfg: cfg, Log: log, Macros: expander, Runner: runner}
}

func (ne *Engine) intervalLength() int {
	if ne.Cfg.IntervalLength > 0 {
		return ne.Cfg.IntervalLength
	}
	return 60
}

// OnStateChange evaluates a regular problem or recovery notification for
// c. It returns true when at least one contact was notified.
func (ne *Engine) OnStateChange(c *objects.Checkable, now time.Time) bool {
	return ne.Notify(c, objects.NotificationNormal, "", "", objects.NotificationOptionNone, now)
}

// Notify sends a notification of the given type if the gates allow it.
// The notification number moves only when something was actually sent.
func (ne *Engine) Notify(c *objects.Checkable, ntype int, author, data string, options int, now time.Time) bool {
	if !ne.viable(c, ntype, options, now) {
		return false
	}

	increment := ntype == objects.NotificationNormal || options&objects.NotificationOptionIncrement != 0
	if increment {
		c.CurrentNotificationNumber++
	}

	contacts := ne.ContactsFor(c, options, now)
	typeName := objects.NotificationTypeName(ntype, c.CurrentState)

	var notified []*objects.Contact
	for _, ct := range contacts {
		if ne.contactViable(ct, c, ntype, options, now) {
			notified = append(notified, ct)
		}
	}

	if len(notified) == 0 {
		if increment {
			c.CurrentNotificationNumber--
		}
		return false
	}

	c.CurrentNotificationID = ne.Cfg.NextNotification()
	escalated := "0"
	if len(ActiveEscalations(c, options, now)) > 0 {
		escalated = "1"
	}
	extra := map[string]string{
		"NOTIFICATIONTYPE":        typeName,
		"NOTIFICATIONAUTHOR":      author,
		"NOTIFICATIONCOMMENT":     data,
		"NOTIFICATIONNUMBER":      strconv.Itoa(c.CurrentNotificationNumber),
		"NOTIFICATIONID":          strconv.FormatUint(c.CurrentNotificationID, 10),
		"NOTIFICATIONRECIPIENTS":  recipients(notified),
		"NOTIFICATIONISESCALATED": escalated,
	}
	for _, ct := range notified {
		ne.dispatch(ct, c, ntype, author, data, extra, now)
	}

	if ntype == objects.NotificationNormal {
		ne.afterNormal(c, now)
	}
	ne.Broker.Notification(c, ntype, now)
	ne.Metrics.NotificationSent(typeName)
	return true
}

func (ne *Engine) afterNormal(c *objects.Checkable, now time.Time) {
	if c.CurrentState == objects.ServiceOK {
		c.NotifiedOn = 0
		c.CurrentNotificationNumber = 0
		c.NoMoreNotifications = false
		c.LastNotification = now
		c.NextNotification = time.Time{}
		return
	}
	c.LastNotification = now
	c.NextNotification = NextNotificationTime(c, now, ne.intervalLength())
	c.NotifiedOn |= stateFlag(c)
}

func stateFlag(c *objects.Checkable) uint32 {
	if c.IsHost() {
		switch c.CurrentState {
		case objects.HostDown:
			return objects.OptDown
		case objects.HostUnreachable:
			return objects.OptUnreachable
		}
		return 0
	}
	switch c.CurrentState {
	case objects.ServiceWarning:
		return objects.OptWarning
	case objects.ServiceCritical:
		return objects.OptCritical
	case objects.ServiceUnknown:
		return objects.OptUnknown
	}
	return 0
}

func recipients(list []*objects.Contact) string {
	names := make([]string, len(list))
	for i, ct := range list {
		names[i] = ct.Name
	}
	return strings.Join(names, ",")
}

func isFlappingType(ntype int) bool {
	return ntype == objects.NotificationFlappingStart ||
		ntype == objects.NotificationFlappingStop ||
		ntype == objects.NotificationFlappingDisabled
}

func isDowntimeType(ntype int) bool {
	return ntype == objects.NotificationDowntimeStart ||
		ntype == objects.NotificationDowntimeEnd ||
		ntype == objects.NotificationDowntimeCancelled
}

// InDowntime reports whether c, or the host of a service, is in
// scheduled downtime.
func InDowntime(c *objects.Checkable) bool {
	if c.ScheduledDowntimeDepth > 0 {
		return true
	}
	return c.IsService() && c.Host != nil && c.Host.ScheduledDowntimeDepth > 0
}

// viable applies the object-level gates.
func (ne *Engine) viable(c *objects.Checkable, ntype int, options int, now time.Time) bool {
	if options&objects.NotificationOptionForced != 0 {
		return true
	}

	// (a) enabled globally and on the object
	if !ne.Cfg.EnableNotifications || !c.NotificationsEnabled {
		return false
	}
	if c.IsService() {
		if c.Host == nil {
			return false
		}
		if len(c.ServiceParents) > 0 && allParentsBad(c.ServiceParents) {
			return false
		}
	}

	// (c) notification period
	if !timeperiod.IsCovered(c.NotificationPeriod, now) {
		return false
	}

	// (b) downtime, except for the downtime notifications themselves
	if isDowntimeType(ntype) {
		return c.NotificationOptions&objects.OptDowntime != 0
	}
	if InDowntime(c) {
		return false
	}

	switch {
	case ntype == objects.NotificationCustom:
		return true
	case ntype == objects.NotificationAcknowledgement:
		return c.CurrentState != objects.ServiceOK
	case isFlappingType(ntype):
		return c.NotificationOptions&objects.OptFlapping != 0
	}

	// Regular problem and recovery notifications
	if c.StateType != objects.StateTypeHard {
		return false
	}
	if c.ProblemAcknowledged {
		return false
	}
	if !dependency.CanNotify(c, ne.Cfg.SoftStateDependencies, now) {
		return false
	}
	// (e) notify-on flags
	if !c.StateMatchesOptions(c.CurrentState, c.NotificationOptions) {
		return false
	}
	if c.CurrentState == objects.ServiceOK && c.NotifiedOn == 0 {
		return false
	}
	if c.CurrentNotificationNumber == 0 && c.CurrentState != objects.ServiceOK &&
		c.FirstNotificationDelay > 0 && !c.FirstProblemTime.IsZero() {
		delay := time.Duration(c.FirstNotificationDelay * float64(ne.intervalLength()) * float64(time.Second))
		if now.Sub(c.FirstProblemTime) < delay {
			return false
		}
	}
	if c.IsFlapping {
		return false
	}
	if c.CurrentState == objects.ServiceOK {
		return true
	}

	if c.IsService() && c.Host.CurrentState != objects.HostUp {
		return false
	}
	if c.NotificationInterval == 0 && c.NoMoreNotifications {
		return false
	}
	// (d) interval elapsed for repeats
	if !c.IsVolatile && !c.NextNotification.IsZero() && now.Before(c.NextNotification) {
		return false
	}
	return true
}

func allParentsBad(parents []*objects.Checkable) bool {
	for _, p := range parents {
		if p.CurrentState == objects.ServiceOK {
			return false
		}
	}
	return true
}

// ContactsFor resolves the deduplicated contact set of c: the base
// contacts and contact groups plus the contacts of every escalation tier
// that applies at now.
func (ne *Engine) ContactsFor(c *objects.Checkable, options int, now time.Time) []*objects.Contact {
	seen := make(map[*objects.Contact]bool)
	var contacts []*objects.Contact
	add := func(list []*objects.Contact, groups []*objects.ContactGroup) {
		for _, ct := range list {
			if !seen[ct] {
				seen[ct] = true
				contacts = append(contacts, ct)
			}
		}
		for _, cg := range groups {
			for _, ct := range cg.Members {
				if !seen[ct] {
					seen[ct] = true
					contacts = append(contacts, ct)
				}
			}
		}
	}

	add(c.Contacts, c.ContactGroups)
	for _, esc := range ActiveEscalations(c, options, now) {
		add(esc.Contacts, esc.ContactGroups)
	}
	return contacts
}

// contactViable applies the per-contact filters.
func (ne *Engine) contactViable(ct *objects.Contact, c *objects.Checkable, ntype int, options int, now time.Time) bool {
	if options&objects.NotificationOptionForced != 0 {
		return true
	}
	if !ct.NotificationsEnabledFor(c.Kind) {
		return false
	}
	if !timeperiod.IsCovered(ct.NotificationPeriodFor(c.Kind), now) {
		return false
	}

	opts := ct.NotificationOptionsFor(c.Kind)
	switch {
	case ntype == objects.NotificationCustom:
		return true
	case isFlappingType(ntype):
		return opts&objects.OptFlapping != 0
	case isDowntimeType(ntype):
		return opts&objects.OptDowntime != 0
	}
	return c.StateMatchesOptions(c.CurrentState, opts)
}

func (ne *Engine) dispatch(ct *objects.Contact, c *objects.Checkable, ntype int, author, data string, extra map[string]string, now time.Time) {
	for _, cmd := range ct.NotificationCommandsFor(c.Kind) {
		line := cmd.CommandLine
		if ne.Macros != nil {
			line = ne.Macros.Expand(cmd.CommandLine, &macros.Context{
				Checkable: c,
				Contact:   ct,
				Extra:     extra,
				Now:       now,
			})
		}
		if ne.Log != nil {
			ne.Log.Notification(ct.Name, c, ntype, cmd.Name, author, data)
		}
		if ne.Runner != nil {
			ne.Runner.Execute(line)
		}
	}
	ct.MarkNotified(c.Kind, now)
}

// Acknowledge marks the current problem of c as acknowledged, records an
// acknowledgement comment and optionally notifies. A sticky
// acknowledgement survives changes between problem states.
func (ne *Engine) Acknowledge(c *objects.Checkable, author, comment string, sticky, notify, persistent bool, now time.Time) bool {
	if c.CurrentState == objects.ServiceOK {
		return false
	}
	c.ProblemAcknowledged = true
	c.AckType = objects.AckNormal
	if sticky {
		c.AckType = objects.AckSticky
	}
	if ne.Comments != nil {
		ne.Comments.AddFor(c, objects.AcknowledgementCommentEntry, persistent, author, comment, now)
	}
	ne.Broker.Annotation(broker.TypeAcknowledgement, c, comment, now)
	if notify {
		ne.Notify(c, objects.NotificationAcknowledgement, author, comment, objects.NotificationOptionNone, now)
	}
	return true
}

// RemoveAcknowledgement clears an acknowledgement and its comments.
func (ne *Engine) RemoveAcknowledgement(c *objects.Checkable) {
	c.ProblemAcknowledged = false
	c.AckType = objects.AckNone
	if ne.Comments != nil {
		ne.Comments.DeleteAckComments(c.ID)
	}
}
