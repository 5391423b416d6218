package objects

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

type Command struct {
	Name        string
	CommandLine string
}

type Contact struct {
	Name                        string
	Alias                       string
	Email                       string
	Pager                       string
	Addresses                   [MaxContactAddresses]string
	HostNotificationPeriod      *timeperiod.Timeperiod
	ServiceNotificationPeriod   *timeperiod.Timeperiod
	HostNotificationCommands    []*Command
	ServiceNotificationCommands []*Command
	HostNotificationOptions     uint32
	ServiceNotificationOptions  uint32
	HostNotificationsEnabled    bool
	ServiceNotificationsEnabled bool
	ContactGroups               []*ContactGroup
	CustomVars                  map[string]string

	LastHostNotification    time.Time
	LastServiceNotification time.Time
}

// NotificationsEnabledFor reports whether the contact accepts notifications
// for the given kind of object.
func (ct *Contact) NotificationsEnabledFor(k Kind) bool {
	if k == KindHost {
		return ct.HostNotificationsEnabled
	}
	return ct.ServiceNotificationsEnabled
}

func (ct *Contact) NotificationPeriodFor(k Kind) *timeperiod.Timeperiod {
	if k == KindHost {
		return ct.HostNotificationPeriod
	}
	return ct.ServiceNotificationPeriod
}

func (ct *Contact) NotificationOptionsFor(k Kind) uint32 {
	if k == KindHost {
		return ct.HostNotificationOptions
	}
	return ct.ServiceNotificationOptions
}

func (ct *Contact) NotificationCommandsFor(k Kind) []*Command {
	if k == KindHost {
		return ct.HostNotificationCommands
	}
	return ct.ServiceNotificationCommands
}

// MarkNotified records the time of the last notification sent to the
// contact for the given kind.
func (ct *Contact) MarkNotified(k Kind, now time.Time) {
	if k == KindHost {
		ct.LastHostNotification = now
	} else {
		ct.LastServiceNotification = now
	}
}

type ContactGroup struct {
	Name    string
	Alias   string
	Members []*Contact
}

// Escalation widens or replaces the contact set of a checkable once its
// notification number reaches FirstNotification. A LastNotification of 0
// means no upper bound.
type Escalation struct {
	// Names as written in the definition, kept for re-resolution.
	HostName    string
	Description string

	Checkable            *Checkable
	ContactGroups        []*ContactGroup
	Contacts             []*Contact
	FirstNotification    int
	LastNotification     int
	NotificationInterval float64
	EscalationPeriod     *timeperiod.Timeperiod
	EscalationOptions    uint32
}

// Dependency makes Dependent's checks or notifications conditional on the
// state of Master.
type Dependency struct {
	Dependent                  *Checkable
	Master                     *Checkable
	DependencyPeriod           *timeperiod.Timeperiod
	InheritsParent             bool
	ExecutionFailureOptions    uint32
	NotificationFailureOptions uint32
}
