// Package retention captures the runtime state of the engine so that a
// restart resumes scheduling without spurious notifications.
package retention

import (
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/downtime"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// CheckableState is the retained runtime state of one host or service,
// keyed by its identity key.
type CheckableState struct {
	Key string `json:"key"`

	CurrentState        int       `json:"current_state"`
	LastState           int       `json:"last_state"`
	LastHardState       int       `json:"last_hard_state"`
	StateType           int       `json:"state_type"`
	CurrentAttempt      int       `json:"current_attempt"`
	HasBeenChecked      bool      `json:"has_been_checked"`
	CheckType           int       `json:"check_type"`
	PluginOutput        string    `json:"plugin_output"`
	LongPluginOutput    string    `json:"long_plugin_output"`
	PerfData            string    `json:"performance_data"`
	LastCheck           time.Time `json:"last_check"`
	NextCheck           time.Time `json:"next_check"`
	LastStateChange     time.Time `json:"last_state_change"`
	LastHardStateChange time.Time `json:"last_hard_state_change"`
	Latency             float64   `json:"check_latency"`
	ExecutionTime       float64   `json:"check_execution_time"`

	StateHistory       [objects.MaxStateHistoryEntries]int `json:"state_history"`
	StateHistoryIndex  int                                 `json:"state_history_index"`
	PercentStateChange float64                             `json:"percent_state_change"`
	IsFlapping         bool                                `json:"is_flapping"`
	FlappingCommentID  uint64                              `json:"flapping_comment_id"`

	ProblemAcknowledged       bool      `json:"problem_has_been_acknowledged"`
	AckType                   int       `json:"acknowledgement_type"`
	CurrentNotificationNumber int       `json:"current_notification_number"`
	CurrentNotificationID     uint64    `json:"current_notification_id"`
	LastNotification          time.Time `json:"last_notification"`
	NextNotification          time.Time `json:"next_notification"`
	NotifiedOn                uint32    `json:"notified_on"`
	NoMoreNotifications       bool      `json:"no_more_notifications"`
	FirstProblemTime          time.Time `json:"first_problem_time"`

	CurrentEventID   uint64 `json:"current_event_id"`
	LastEventID      uint64 `json:"last_event_id"`
	CurrentProblemID uint64 `json:"current_problem_id"`
	LastProblemID    uint64 `json:"last_problem_id"`

	ModifiedAttributes   uint64 `json:"modified_attributes"`
	NotificationsEnabled bool   `json:"notifications_enabled"`
	ActiveChecksEnabled  bool   `json:"active_checks_enabled"`
	PassiveChecksEnabled bool   `json:"passive_checks_enabled"`

	PendingImmediateCheck   bool `json:"pending_immediate_check"`
	PendingImmediateOptions int  `json:"pending_immediate_options"`
}

// Snapshot is everything retention persists.
type Snapshot struct {
	Version    string    `json:"version"`
	InstanceID string    `json:"instance_id"`
	Created    time.Time `json:"created"`

	Checkables []*CheckableState    `json:"checkables"`
	Comments   []*downtime.Comment  `json:"comments"`
	Downtimes  []*downtime.Downtime `json:"downtimes"`

	NextEventID        uint64 `json:"next_event_id"`
	NextProblemID      uint64 `json:"next_problem_id"`
	NextNotificationID uint64 `json:"next_notification_id"`
	NextCommentID      uint64 `json:"next_comment_id"`
	NextDowntimeID     uint64 `json:"next_downtime_id"`

	ModifiedHostAttributes    uint64 `json:"modified_host_attributes"`
	ModifiedServiceAttributes uint64 `json:"modified_service_attributes"`
	ExecuteHostChecks         bool   `json:"execute_host_checks"`
	ExecuteServiceChecks      bool   `json:"execute_service_checks"`
}

// Capture takes a snapshot of the registry, the global id counters and
// the comments and downtimes held by dm. dm may be nil.
func Capture(cfg *objects.Config, reg *objects.Registry, dm *downtime.Manager, now time.Time) *Snapshot {
	s := &Snapshot{
		Created:            now,
		NextEventID:        cfg.NextEventID,
		NextProblemID:      cfg.NextProblemID,
		NextNotificationID: cfg.NextNotificationID,

		ModifiedHostAttributes:    cfg.ModifiedHostAttributes,
		ModifiedServiceAttributes: cfg.ModifiedServiceAttributes,
		ExecuteHostChecks:         cfg.ExecuteHostChecks,
		ExecuteServiceChecks:      cfg.ExecuteServiceChecks,
	}
	for _, c := range reg.Checkables() {
		s.Checkables = append(s.Checkables, captureCheckable(c))
	}
	if dm != nil {
		s.Comments = dm.Comments().All()
		s.Downtimes = dm.All()
		s.NextCommentID = dm.Comments().NextID()
		s.NextDowntimeID = dm.NextID()
	}
	return s
}

func captureCheckable(c *objects.Checkable) *CheckableState {
	return &CheckableState{
		Key:                       c.Key(),
		CurrentState:              c.CurrentState,
		LastState:                 c.LastState,
		LastHardState:             c.LastHardState,
		StateType:                 c.StateType,
		CurrentAttempt:            c.CurrentAttempt,
		HasBeenChecked:            c.HasBeenChecked,
		CheckType:                 c.CheckType,
		PluginOutput:              c.PluginOutput,
		LongPluginOutput:          c.LongPluginOutput,
		PerfData:                  c.PerfData,
		LastCheck:                 c.LastCheck,
		NextCheck:                 c.NextCheck,
		LastStateChange:           c.LastStateChange,
		LastHardStateChange:       c.LastHardStateChange,
		Latency:                   c.Latency,
		ExecutionTime:             c.ExecutionTime,
		StateHistory:              c.StateHistory,
		StateHistoryIndex:         c.StateHistoryIndex,
		PercentStateChange:        c.PercentStateChange,
		IsFlapping:                c.IsFlapping,
		FlappingCommentID:         c.FlappingCommentID,
		ProblemAcknowledged:       c.ProblemAcknowledged,
		AckType:                   c.AckType,
		CurrentNotificationNumber: c.CurrentNotificationNumber,
		CurrentNotificationID:     c.CurrentNotificationID,
		LastNotification:          c.LastNotification,
		NextNotification:          c.NextNotification,
		NotifiedOn:                c.NotifiedOn,
		NoMoreNotifications:       c.NoMoreNotifications,
		FirstProblemTime:          c.FirstProblemTime,
		CurrentEventID:            c.CurrentEventID,
		LastEventID:               c.LastEventID,
		CurrentProblemID:          c.CurrentProblemID,
		LastProblemID:             c.LastProblemID,
		ModifiedAttributes:        c.ModifiedAttributes,
		NotificationsEnabled:      c.NotificationsEnabled,
		ActiveChecksEnabled:       c.ActiveChecksEnabled,
		PassiveChecksEnabled:      c.PassiveChecksEnabled,
		PendingImmediateCheck:     c.PendingImmediateCheck,
		PendingImmediateOptions:   c.PendingImmediateOptions,
	}
}

// Apply restores the snapshot onto reg and dm. Objects that no longer
// exist are skipped. It returns how many checkables were restored.
//
// Apply runs before the initial scheduling pass, so the restored
// NextCheck is only a hint the scheduler may honour.
func (s *Snapshot) Apply(cfg *objects.Config, reg *objects.Registry, dm *downtime.Manager) int {
	cfg.NextEventID = max(cfg.NextEventID, s.NextEventID)
	cfg.NextProblemID = max(cfg.NextProblemID, s.NextProblemID)
	cfg.NextNotificationID = max(cfg.NextNotificationID, s.NextNotificationID)
	if s.ModifiedHostAttributes&objects.ModAttrActiveChecksEnabled != 0 {
		cfg.ExecuteHostChecks = s.ExecuteHostChecks
	}
	if s.ModifiedServiceAttributes&objects.ModAttrActiveChecksEnabled != 0 {
		cfg.ExecuteServiceChecks = s.ExecuteServiceChecks
	}
	cfg.ModifiedHostAttributes |= s.ModifiedHostAttributes
	cfg.ModifiedServiceAttributes |= s.ModifiedServiceAttributes

	n := 0
	for _, st := range s.Checkables {
		c := reg.ByKey(st.Key)
		if c == nil {
			continue
		}
		applyCheckable(c, st)
		n++
	}

	if dm == nil {
		return n
	}
	for _, cm := range s.Comments {
		target := resolve(reg, cm.HostName, cm.Description)
		if target == nil {
			continue
		}
		cm.CheckableID = target.ID
		dm.Comments().Restore(cm)
	}
	for _, d := range s.Downtimes {
		target := resolve(reg, d.HostName, d.Description)
		if target == nil {
			continue
		}
		d.CheckableID = target.ID
		dm.Restore(d)
	}
	dm.Comments().SetNextID(s.NextCommentID)
	dm.SetNextID(s.NextDowntimeID)

	// A flapping comment that did not survive must not be referenced.
	for _, c := range reg.Checkables() {
		if c.FlappingCommentID != 0 && dm.Comments().Get(c.FlappingCommentID) == nil {
			c.FlappingCommentID = 0
		}
	}
	return n
}

func applyCheckable(c *objects.Checkable, st *CheckableState) {
	c.CurrentState = st.CurrentState
	c.LastState = st.LastState
	c.LastHardState = st.LastHardState
	c.StateType = st.StateType
	c.CurrentAttempt = st.CurrentAttempt
	if c.CurrentAttempt > c.MaxCheckAttempts {
		c.CurrentAttempt = c.MaxCheckAttempts
	}
	c.HasBeenChecked = st.HasBeenChecked
	c.CheckType = st.CheckType
	c.PluginOutput = st.PluginOutput
	c.LongPluginOutput = st.LongPluginOutput
	c.PerfData = st.PerfData
	c.LastCheck = st.LastCheck
	c.NextCheck = st.NextCheck
	c.LastStateChange = st.LastStateChange
	c.LastHardStateChange = st.LastHardStateChange
	c.Latency = st.Latency
	c.ExecutionTime = st.ExecutionTime

	c.StateHistory = st.StateHistory
	c.StateHistoryIndex = st.StateHistoryIndex % objects.MaxStateHistoryEntries
	c.PercentStateChange = st.PercentStateChange
	c.IsFlapping = st.IsFlapping
	c.FlappingCommentID = st.FlappingCommentID

	c.ProblemAcknowledged = st.ProblemAcknowledged
	c.AckType = st.AckType
	c.CurrentNotificationNumber = st.CurrentNotificationNumber
	c.CurrentNotificationID = st.CurrentNotificationID
	c.LastNotification = st.LastNotification
	c.NextNotification = st.NextNotification
	c.NotifiedOn = st.NotifiedOn
	c.NoMoreNotifications = st.NoMoreNotifications
	c.FirstProblemTime = st.FirstProblemTime

	c.CurrentEventID = st.CurrentEventID
	c.LastEventID = st.LastEventID
	c.CurrentProblemID = st.CurrentProblemID
	c.LastProblemID = st.LastProblemID

	// Configured toggles win unless an operator changed them at runtime.
	c.ModifiedAttributes = st.ModifiedAttributes
	if st.ModifiedAttributes&objects.ModAttrNotificationsEnabled != 0 {
		c.NotificationsEnabled = st.NotificationsEnabled
	}
	if st.ModifiedAttributes&objects.ModAttrActiveChecksEnabled != 0 {
		c.ActiveChecksEnabled = st.ActiveChecksEnabled
	}
	if st.ModifiedAttributes&objects.ModAttrPassiveChecksEnabled != 0 {
		c.PassiveChecksEnabled = st.PassiveChecksEnabled
	}
	c.PendingImmediateCheck = st.PendingImmediateCheck
	c.PendingImmediateOptions = st.PendingImmediateOptions
}

func resolve(reg *objects.Registry, host, desc string) *objects.Checkable {
	if desc == "" {
		return reg.Host(host)
	}
	return reg.Service(host, desc)
}
