package objects

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// ID identifies a Checkable inside a Registry. IDs are never reused, so a
// stale ID held by a queued event resolves to nothing instead of to a
// different object.
type ID uint64

// Kind discriminates hosts from services.
type Kind uint8

const (
	KindHost Kind = iota + 1
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindService:
		return "service"
	}
	return "unknown"
}

// Checkable is a host or a service. Shared behaviour works on this one
// type; the few host- or service-only fields are documented as such.
type Checkable struct {
	ID   ID
	Kind Kind

	// Identity. HostName is set for both kinds; Description only for
	// services.
	HostName    string
	Description string
	DisplayName string
	Alias       string
	Address     string

	// Host-side links
	Parents  []*Checkable
	Children []*Checkable
	Services []*Checkable

	// Service-side links
	Host           *Checkable
	ServiceParents []*Checkable

	// Config
	CheckCommand           *Command
	CheckCommandArgs       string
	CheckPeriod            *timeperiod.Timeperiod
	CheckInterval          float64 // interval units
	RetryInterval          float64
	MaxCheckAttempts       int
	InitialState           int
	IsVolatile             bool
	ActiveChecksEnabled    bool
	PassiveChecksEnabled   bool
	CheckFreshness         bool
	FreshnessThreshold     int // seconds, 0 = automatic
	LowFlapThreshold       float64
	HighFlapThreshold      float64
	FlapDetectionEnabled   bool
	FlapDetectionOptions   uint32
	ContactGroups          []*ContactGroup
	Contacts               []*Contact
	NotificationOptions    uint32
	NotificationsEnabled   bool
	NotificationPeriod     *timeperiod.Timeperiod
	NotificationInterval   float64
	FirstNotificationDelay float64
	ProcessPerfData        bool
	CustomVars             map[string]string

	// Runtime state
	CurrentState        int
	LastState           int
	LastHardState       int
	StateType           int
	CurrentAttempt      int
	HasBeenChecked      bool
	IsExecuting         bool
	IsFlapping          bool
	PluginOutput        string
	LongPluginOutput    string
	PerfData            string
	RawOutput           string
	LastCheck           time.Time
	NextCheck           time.Time
	LastStateChange     time.Time
	LastHardStateChange time.Time
	LastTimeIn          [4]time.Time // indexed by state
	ShouldBeScheduled   bool
	CheckOptions        int
	CheckType           int
	Latency             float64
	ExecutionTime       float64

	// An immediate check requested while checks were disabled; honoured
	// when they are enabled again.
	PendingImmediateCheck   bool
	PendingImmediateOptions int

	// Flap detection state
	StateHistory       [MaxStateHistoryEntries]int
	StateHistoryIndex  int
	PercentStateChange float64
	FlappingCommentID  uint64

	// Notification state
	CurrentNotificationNumber int
	CurrentNotificationID     uint64
	LastNotification          time.Time
	NextNotification          time.Time
	NotifiedOn                uint32
	NoMoreNotifications       bool
	ProblemAcknowledged       bool
	AckType                   int
	ScheduledDowntimeDepth    int
	PendingFlexDowntime       int
	HostProblemAtLastCheck    bool
	CheckFlapRecoveryNotif    bool
	FirstProblemTime          time.Time
	ModifiedAttributes        uint64

	CurrentEventID   uint64
	LastEventID      uint64
	CurrentProblemID uint64
	LastProblemID    uint64

	Escalations []*Escalation
	NotifyDeps  []*Dependency
	ExecDeps    []*Dependency

	IsBeingFreshened bool
}

// NewHost returns a host with the usual defaults applied.
func NewHost(name string) *Checkable {
	c := &Checkable{Kind: KindHost, HostName: name}
	c.applyDefaults()
	return c
}

// NewService returns a service bound to host by name. The Host link is
// established when the service is added to a Registry.
func NewService(hostName, description string) *Checkable {
	c := &Checkable{Kind: KindService, HostName: hostName, Description: description}
	c.applyDefaults()
	return c
}

func (c *Checkable) applyDefaults() {
	c.CheckInterval = 5
	c.RetryInterval = 1
	c.MaxCheckAttempts = 3
	c.ActiveChecksEnabled = true
	c.PassiveChecksEnabled = true
	c.NotificationsEnabled = true
	c.FlapDetectionEnabled = true
	c.FlapDetectionOptions = OptAll
	c.NotificationInterval = 30
	c.StateType = StateTypeHard
	c.CurrentAttempt = 1
	c.ShouldBeScheduled = true
	if c.Kind == KindHost {
		c.NotificationOptions = OptDown | OptUnreachable | OptRecovery | OptFlapping | OptDowntime
	} else {
		c.NotificationOptions = OptWarning | OptCritical | OptUnknown | OptRecovery | OptFlapping | OptDowntime
	}
}

func (c *Checkable) IsHost() bool    { return c.Kind == KindHost }
func (c *Checkable) IsService() bool { return c.Kind == KindService }

// Key is the stable identity used for lookups, retention and reload:
// the host name, or "host\tdescription" for a service.
func (c *Checkable) Key() string {
	if c.Kind == KindService {
		return ServiceKey(c.HostName, c.Description)
	}
	return c.HostName
}

// ServiceKey builds the Key of a service.
func ServiceKey(hostName, description string) string {
	return hostName + "\t" + description
}

// String renders "host" or "host;service" as used in log lines.
func (c *Checkable) String() string {
	if c.Kind == KindService {
		return c.HostName + ";" + c.Description
	}
	return c.HostName
}

// StateName renders a state of this checkable's kind.
func (c *Checkable) StateName(state int) string {
	if c.Kind == KindHost {
		return HostStateName(state)
	}
	return ServiceStateName(state)
}

// StateMatchesOptions tests a state against a notification option mask of
// this checkable's kind.
func (c *Checkable) StateMatchesOptions(state int, opts uint32) bool {
	if c.Kind == KindHost {
		return StateMatchesHostOptions(state, opts)
	}
	return StateMatchesSvcOptions(state, opts)
}

// IsOK reports whether the current state is UP/OK.
func (c *Checkable) IsOK() bool { return c.CurrentState == ServiceOK }

// ChecksEnabled reports whether active checks are enabled both on the
// object and globally.
func (c *Checkable) ChecksEnabled(cfg *Config) bool {
	if !c.ActiveChecksEnabled {
		return false
	}
	if c.Kind == KindHost {
		return cfg.ExecuteHostChecks
	}
	return cfg.ExecuteServiceChecks
}

// PassiveAccepted reports whether passive results are accepted.
func (c *Checkable) PassiveAccepted(cfg *Config) bool {
	if !c.PassiveChecksEnabled {
		return false
	}
	if c.Kind == KindHost {
		return cfg.AcceptPassiveHostChecks
	}
	return cfg.AcceptPassiveServiceChecks
}

// CheckWindow returns the interval before the next regular check: the retry
// interval while in a soft non-OK state, the normal interval otherwise.
func (c *Checkable) CheckWindow(intervalLength int) time.Duration {
	interval := c.CheckInterval
	if c.StateType == StateTypeSoft && c.CurrentState != ServiceOK {
		interval = c.RetryInterval
	}
	return time.Duration(interval * float64(intervalLength) * float64(time.Second))
}

// FlapThresholds returns the object's thresholds, falling back to the
// global ones when unset.
func (c *Checkable) FlapThresholds(cfg *Config) (low, high float64) {
	low, high = c.LowFlapThreshold, c.HighFlapThreshold
	if c.Kind == KindHost {
		if low == 0 {
			low = cfg.LowHostFlapThreshold
		}
		if high == 0 {
			high = cfg.HighHostFlapThreshold
		}
		return low, high
	}
	if low == 0 {
		low = cfg.LowServiceFlapThreshold
	}
	if high == 0 {
		high = cfg.HighServiceFlapThreshold
	}
	return low, high
}

// CheckTimeout returns the configured plugin timeout for this kind.
func (c *Checkable) CheckTimeout(cfg *Config) time.Duration {
	if c.Kind == KindHost {
		return time.Duration(cfg.HostCheckTimeout) * time.Second
	}
	return time.Duration(cfg.ServiceCheckTimeout) * time.Second
}

// InitState puts the runtime state in its pre-first-check shape.
func (c *Checkable) InitState() {
	c.CurrentState = c.InitialState
	c.LastState = c.InitialState
	c.LastHardState = c.InitialState
	c.StateType = StateTypeHard
	c.CurrentAttempt = 1
}
