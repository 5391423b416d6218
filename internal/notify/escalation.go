// Package notify decides whether a checkable's state warrants a
// notification, who receives it, and dispatches the contact commands.
package notify

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// IsValidEscalation reports whether esc applies to notification number
// notifNum of c at now. An escalation whose checkable did not resolve
// never applies.
func IsValidEscalation(c *objects.Checkable, esc *objects.Escalation, notifNum int, options int, now time.Time) bool {
	if esc.Checkable == nil {
		return false
	}
	if options&objects.NotificationOptionBroadcast != 0 {
		return true
	}

	// A recovery belongs to the tier of the last problem notification.
	num := notifNum
	if c.CurrentState == objects.ServiceOK {
		num = notifNum - 1
	}
	if esc.FirstNotification > 0 && num < esc.FirstNotification {
		return false
	}
	if esc.LastNotification > 0 && num > esc.LastNotification {
		return false
	}

	if esc.EscalationOptions != 0 && !c.StateMatchesOptions(c.CurrentState, esc.EscalationOptions) {
		return false
	}

	// Evaluated on its own, regardless of the notification period.
	return timeperiod.IsCovered(esc.EscalationPeriod, now)
}

// ActiveEscalations returns the escalations of c that apply right now.
func ActiveEscalations(c *objects.Checkable, options int, now time.Time) []*objects.Escalation {
	var out []*objects.Escalation
	for _, esc := range c.Escalations {
		if IsValidEscalation(c, esc, c.CurrentNotificationNumber, options, now) {
			out = append(out, esc)
		}
	}
	return out
}

// NextNotificationTime computes when a repeat problem notification may
// go out, using the shortest interval of the active escalations. An
// escalation interval below zero means "use the object's". A zero
// interval means "notify once" and sets NoMoreNotifications.
func NextNotificationTime(c *objects.Checkable, from time.Time, intervalLength int) time.Time {
	interval := c.NotificationInterval

	overridden := false
	for _, esc := range ActiveEscalations(c, objects.NotificationOptionNone, from) {
		if esc.NotificationInterval < 0 {
			continue
		}
		if !overridden || esc.NotificationInterval < interval {
			interval = esc.NotificationInterval
			overridden = true
		}
	}

	if interval == 0 {
		c.NoMoreNotifications = true
	}
	return from.Add(time.Duration(interval * float64(intervalLength) * float64(time.Second)))
}
