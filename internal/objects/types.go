// Package objects holds the monitored object model: the tagged Checkable
// entity, contacts, commands, escalations, dependencies, the engine Config
// and the Registry that owns them.
package objects

// State constants
const (
	HostUp          = 0
	HostDown        = 1
	HostUnreachable = 2

	ServiceOK       = 0
	ServiceWarning  = 1
	ServiceCritical = 2
	ServiceUnknown  = 3

	StateTypeSoft = 0
	StateTypeHard = 1

	MaxContactAddresses    = 6
	MaxStateHistoryEntries = 21

	AckNone   = 0
	AckNormal = 1
	AckSticky = 2
)

// Notification types
const (
	NotificationNormal            = 0
	NotificationAcknowledgement   = 1
	NotificationFlappingStart     = 2
	NotificationFlappingStop      = 3
	NotificationFlappingDisabled  = 4
	NotificationDowntimeStart     = 5
	NotificationDowntimeEnd       = 6
	NotificationDowntimeCancelled = 7
	NotificationCustom            = 8
)

// Notification option flags
const (
	NotificationOptionNone      = 0
	NotificationOptionBroadcast = 1
	NotificationOptionForced    = 2
	NotificationOptionIncrement = 4
)

// Dependency types
const (
	NotificationDependency = 1
	ExecutionDependency    = 2
)

// Comment entry types
const (
	UserCommentEntry            = 1
	DowntimeCommentEntry        = 2
	FlappingCommentEntry        = 3
	AcknowledgementCommentEntry = 4
)

// Notification/flap detection option bitmasks
const (
	OptDown        uint32 = 1 << iota // d
	OptUnreachable                    // u
	OptRecovery                       // r
	OptFlapping                       // f
	OptDowntime                       // s
	OptWarning                        // w
	OptCritical                       // c
	OptUnknown                        // k
	OptOK                             // o
	OptPending                        // p
	OptNone        uint32 = 0
	OptAll         uint32 = 0xFFFF
)

// Check option flags
const (
	CheckOptionNone            = 0
	CheckOptionForceExecution  = 1 << 0
	CheckOptionFreshnessCheck  = 1 << 1
	CheckOptionOrphanCheck     = 1 << 2
	CheckOptionDependencyCheck = 1 << 3
)

// Modified attribute bits: a runtime command overrode the configured value.
// Retention and reloads keep only the values whose bit is set.
const (
	ModAttrNotificationsEnabled uint64 = 1 << iota
	ModAttrActiveChecksEnabled
	ModAttrPassiveChecksEnabled
)

// CheckTypeActive / CheckTypePassive
const (
	CheckTypeActive  = 0
	CheckTypePassive = 1
)

var notificationTypeNames = map[int]string{
	NotificationAcknowledgement:   "ACKNOWLEDGEMENT",
	NotificationFlappingStart:     "FLAPPINGSTART",
	NotificationFlappingStop:      "FLAPPINGSTOP",
	NotificationFlappingDisabled:  "FLAPPINGDISABLED",
	NotificationDowntimeStart:     "DOWNTIMESTART",
	NotificationDowntimeEnd:       "DOWNTIMEEND",
	NotificationDowntimeCancelled: "DOWNTIMECANCELLED",
	NotificationCustom:            "CUSTOM",
}

// NotificationTypeName returns the $NOTIFICATIONTYPE$ macro string. A
// normal notification is a RECOVERY in the OK/UP state (both are zero)
// and a PROBLEM otherwise.
func NotificationTypeName(ntype, state int) string {
	if name, ok := notificationTypeNames[ntype]; ok {
		return name
	}
	if state == ServiceOK {
		return "RECOVERY"
	}
	return "PROBLEM"
}

var (
	hostStateNames    = [...]string{HostUp: "UP", HostDown: "DOWN", HostUnreachable: "UNREACHABLE"}
	serviceStateNames = [...]string{ServiceOK: "OK", ServiceWarning: "WARNING", ServiceCritical: "CRITICAL", ServiceUnknown: "UNKNOWN"}
)

func stateName(names []string, state int) string {
	if state < 0 || state >= len(names) {
		return "UNKNOWN"
	}
	return names[state]
}

// HostStateName returns the display name for a host state.
func HostStateName(state int) string { return stateName(hostStateNames[:], state) }

// ServiceStateName returns the display name for a service state.
func ServiceStateName(state int) string { return stateName(serviceStateNames[:], state) }

// StateTypeName returns "HARD" or "SOFT".
func StateTypeName(st int) string {
	if st == StateTypeHard {
		return "HARD"
	}
	return "SOFT"
}

// Flag a state has to carry in an option mask to match. OK and UP match
// the recovery flag.
var (
	hostStateFlags    = [...]uint32{HostUp: OptRecovery, HostDown: OptDown, HostUnreachable: OptUnreachable}
	serviceStateFlags = [...]uint32{ServiceOK: OptRecovery, ServiceWarning: OptWarning, ServiceCritical: OptCritical, ServiceUnknown: OptUnknown}
)

func stateMatches(flags []uint32, state int, opts uint32) bool {
	return state >= 0 && state < len(flags) && opts&flags[state] != 0
}

// StateMatchesHostOptions reports whether opts selects the host state.
func StateMatchesHostOptions(state int, opts uint32) bool {
	return stateMatches(hostStateFlags[:], state, opts)
}

// StateMatchesSvcOptions reports whether opts selects the service state.
func StateMatchesSvcOptions(state int, opts uint32) bool {
	return stateMatches(serviceStateFlags[:], state, opts)
}

var optionLetters = map[rune]uint32{
	'd': OptDown,
	'r': OptRecovery,
	'f': OptFlapping,
	's': OptDowntime,
	'w': OptWarning,
	'c': OptCritical,
	'k': OptUnknown,
	'o': OptOK,
	'p': OptPending,
}

// ParseOptions converts a letter list such as "w,c,r" or "d u r f s" to a
// bitmask. "n" clears, "a" sets every flag. For host option lists "u" means
// unreachable; for service lists it means unknown. Other characters are
// separators.
func ParseOptions(s string, host bool) uint32 {
	var opts uint32
	for _, r := range s {
		switch r {
		case 'a':
			return OptAll
		case 'n':
			return OptNone
		case 'u':
			if host {
				opts |= OptUnreachable
			} else {
				opts |= OptUnknown
			}
		default:
			opts |= optionLetters[r]
		}
	}
	return opts
}
