package downtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/broker"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/scheduler"
)

// Downtime is a scheduled maintenance window on a host or service.
type Downtime struct {
	ID                         uint64        `json:"id"`
	CheckableID                objects.ID    `json:"-"`
	HostName                   string        `json:"host_name"`
	Description                string        `json:"service_description,omitempty"`
	EntryTime                  time.Time     `json:"entry_time"`
	StartTime                  time.Time     `json:"start_time"`
	EndTime                    time.Time     `json:"end_time"`
	FlexDowntimeStart          time.Time     `json:"flex_downtime_start"`
	Fixed                      bool          `json:"fixed"`
	TriggeredBy                uint64        `json:"triggered_by"`
	Duration                   time.Duration `json:"duration"`
	IsInEffect                 bool          `json:"is_in_effect"`
	StartNotificationSent      bool          `json:"start_notification_sent"`
	Author                     string        `json:"author"`
	Comment                    string        `json:"comment"`
	CommentID                  uint64        `json:"comment_id"`
	IncrementedPendingDowntime bool          `json:"incremented_pending_downtime"`
}

// EffectiveEnd returns when an active downtime ends: the end time for
// fixed downtimes, flex start plus duration for flexible ones.
func (d *Downtime) EffectiveEnd() time.Time {
	if !d.Fixed && !d.FlexDowntimeStart.IsZero() {
		return d.FlexDowntimeStart.Add(d.Duration)
	}
	return d.EndTime
}

// Logger receives downtime transitions.
type Logger interface {
	Downtime(c *objects.Checkable, action, message string)
}

// Notifier sends downtime start/end/cancel notifications.
type Notifier interface {
	Notify(c *objects.Checkable, ntype int, author, data string, options int, now time.Time) bool
}

// Manager owns every downtime. Not safe for concurrent use.
type Manager struct {
	downtimes map[uint64]*Downtime
	nextID    uint64
	comments  *Comments
	reg       *objects.Registry
	timer     Timer

	Log      Logger
	Notifier Notifier
	Broker   *broker.Broker
}

// NewManager creates a downtime manager. timer may be nil in tests, in
// which case HandleStart/HandleEnd are called directly.
func NewManager(startID uint64, comments *Comments, reg *objects.Registry, timer Timer) *Manager {
	if startID == 0 {
		startID = 1
	}
	return &Manager{
		downtimes: make(map[uint64]*Downtime),
		nextID:    startID,
		comments:  comments,
		reg:       reg,
		timer:     timer,
	}
}

// Comments returns the comment store downtime comments go to.
func (dm *Manager) Comments() *Comments { return dm.comments }

func (dm *Manager) target(d *Downtime) *objects.Checkable {
	if dm.reg == nil {
		return nil
	}
	return dm.reg.Lookup(d.CheckableID)
}

func kindName(c *objects.Checkable) string {
	if c.IsHost() {
		return "host"
	}
	return "service"
}

// Schedule registers a downtime on target and returns its id.
func (dm *Manager) Schedule(target *objects.Checkable, d *Downtime, now time.Time) (uint64, error) {
	if target == nil {
		return 0, fmt.Errorf("downtime for unknown object")
	}
	if !d.EndTime.After(d.StartTime) {
		return 0, fmt.Errorf("downtime on %s ends before it starts", target)
	}
	if !d.Fixed && d.Duration <= 0 {
		return 0, fmt.Errorf("flexible downtime on %s needs a positive duration", target)
	}
	if d.TriggeredBy != 0 && dm.downtimes[d.TriggeredBy] == nil {
		return 0, fmt.Errorf("triggering downtime %d does not exist", d.TriggeredBy)
	}

	d.ID = dm.nextID
	dm.nextID++
	d.CheckableID = target.ID
	d.HostName = target.HostName
	d.Description = target.Description
	if d.EntryTime.IsZero() {
		d.EntryTime = now
	}

	text := fmt.Sprintf("This %s has been scheduled for fixed downtime from %s to %s.",
		kindName(target), d.StartTime.Format(time.RFC3339), d.EndTime.Format(time.RFC3339))
	if !d.Fixed {
		text = fmt.Sprintf("This %s has been scheduled for flexible downtime starting between %s and %s and lasting for %s.",
			kindName(target), d.StartTime.Format(time.RFC3339), d.EndTime.Format(time.RFC3339), d.Duration)
	}
	d.CommentID = dm.comments.AddFor(target, objects.DowntimeCommentEntry, false, d.Author, text, now)

	dm.downtimes[d.ID] = d
	if !d.Fixed && d.TriggeredBy == 0 {
		dm.incrementPending(d)
	}
	dm.arm(d)
	dm.Broker.Annotation(broker.TypeDowntime, target, "scheduled: "+d.Comment, now)
	return d.ID, nil
}

// arm queues the next event a downtime is waiting for. Triggered
// downtimes wait for their trigger instead.
func (dm *Manager) arm(d *Downtime) {
	if dm.timer == nil {
		return
	}
	switch {
	case d.IsInEffect:
		dm.timer.ScheduleEvent(scheduler.EventExpireDowntime, d.EffectiveEnd(), d.ID)
	case d.TriggeredBy != 0:
	case d.Fixed:
		dm.timer.ScheduleEvent(scheduler.EventScheduledDowntime, d.StartTime, d.ID)
	default:
		dm.timer.ScheduleEvent(scheduler.EventExpireDowntime, d.EndTime, d.ID)
	}
}

func (dm *Manager) disarm(id uint64) {
	if dm.timer == nil {
		return
	}
	dm.timer.CancelEvent(scheduler.EventScheduledDowntime, id)
	dm.timer.CancelEvent(scheduler.EventExpireDowntime, id)
}

// Restore re-adds a downtime from retention, re-applying its effect on
// the checkable and re-arming its events.
func (dm *Manager) Restore(d *Downtime) {
	target := dm.reg.Lookup(d.CheckableID)
	if target == nil {
		return
	}
	dm.downtimes[d.ID] = d
	if d.ID >= dm.nextID {
		dm.nextID = d.ID + 1
	}
	if d.IsInEffect {
		target.ScheduledDowntimeDepth++
	}
	if d.IncrementedPendingDowntime {
		target.PendingFlexDowntime++
	}
	dm.arm(d)
}

// Unschedule cancels a downtime and every downtime it triggers.
func (dm *Manager) Unschedule(id uint64, now time.Time) bool {
	d, ok := dm.downtimes[id]
	if !ok {
		return false
	}
	dm.disarm(id)
	if d.IsInEffect {
		dm.stop(d, true, now)
	}
	dm.decrementPending(d)
	if d.CommentID > 0 {
		dm.comments.Delete(d.CommentID)
	}
	delete(dm.downtimes, id)

	for _, tid := range dm.triggeredBy(id) {
		dm.Unschedule(tid, now)
	}
	return true
}

func (dm *Manager) triggeredBy(id uint64) []uint64 {
	var out []uint64
	for tid, td := range dm.downtimes {
		if td.TriggeredBy == id {
			out = append(out, tid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HandleStart puts a downtime in effect and starts the downtimes it
// triggers.
func (dm *Manager) HandleStart(id uint64, now time.Time) {
	d, ok := dm.downtimes[id]
	if !ok || d.IsInEffect {
		return
	}
	c := dm.target(d)
	if c == nil {
		return
	}

	d.IsInEffect = true
	dm.decrementPending(d)
	if c.ScheduledDowntimeDepth == 0 {
		if dm.Log != nil {
			dm.Log.Downtime(c, "STARTED", fmt.Sprintf("%s has entered a period of scheduled downtime", capitalized(c)))
		}
		if !d.StartNotificationSent && dm.Notifier != nil {
			dm.Notifier.Notify(c, objects.NotificationDowntimeStart, d.Author, d.Comment, objects.NotificationOptionNone, now)
			d.StartNotificationSent = true
		}
		dm.Broker.Annotation(broker.TypeDowntime, c, "started", now)
	}
	c.ScheduledDowntimeDepth++
	dm.arm(d)

	for _, tid := range dm.triggeredBy(id) {
		if td := dm.downtimes[tid]; !td.Fixed && td.FlexDowntimeStart.IsZero() {
			td.FlexDowntimeStart = now
		}
		dm.HandleStart(tid, now)
	}
}

// HandleEnd ends an active downtime, or expires a flexible one that never
// started once its window has passed.
func (dm *Manager) HandleEnd(id uint64, now time.Time) {
	d, ok := dm.downtimes[id]
	if !ok {
		return
	}
	if !d.IsInEffect {
		if now.Before(d.EndTime) {
			return
		}
		dm.remove(d)
		return
	}

	dm.stop(d, false, now)
	for _, tid := range dm.triggeredBy(id) {
		dm.HandleEnd(tid, now)
	}
	dm.remove(d)
}

func (dm *Manager) remove(d *Downtime) {
	dm.disarm(d.ID)
	dm.decrementPending(d)
	if d.CommentID > 0 {
		dm.comments.Delete(d.CommentID)
	}
	delete(dm.downtimes, d.ID)
}

func (dm *Manager) stop(d *Downtime, cancelled bool, now time.Time) {
	d.IsInEffect = false
	c := dm.target(d)
	if c == nil {
		return
	}
	action, ntype := "STOPPED", objects.NotificationDowntimeEnd
	if cancelled {
		action, ntype = "CANCELLED", objects.NotificationDowntimeCancelled
	}
	c.ScheduledDowntimeDepth--
	if c.ScheduledDowntimeDepth < 0 {
		c.ScheduledDowntimeDepth = 0
	}
	if c.ScheduledDowntimeDepth == 0 {
		if dm.Log != nil {
			msg := fmt.Sprintf("%s has exited from a period of scheduled downtime", capitalized(c))
			if cancelled {
				msg = "Scheduled downtime for " + kindName(c) + " has been cancelled."
			}
			dm.Log.Downtime(c, action, msg)
		}
		if dm.Notifier != nil {
			dm.Notifier.Notify(c, ntype, d.Author, d.Comment, objects.NotificationOptionNone, now)
		}
		dm.Broker.Annotation(broker.TypeDowntime, c, "stopped", now)
	}
}

// CheckPendingFlex starts the flexible downtimes of c whose window
// contains now, when c is in a problem state.
func (dm *Manager) CheckPendingFlex(c *objects.Checkable, now time.Time) {
	if c.CurrentState == objects.ServiceOK {
		return
	}
	var toStart []uint64
	for id, d := range dm.downtimes {
		if d.CheckableID != c.ID || d.Fixed || d.IsInEffect || d.TriggeredBy != 0 {
			continue
		}
		if now.Before(d.StartTime) || now.After(d.EndTime) {
			continue
		}
		toStart = append(toStart, id)
	}
	sort.Slice(toStart, func(i, j int) bool { return toStart[i] < toStart[j] })
	for _, id := range toStart {
		dm.downtimes[id].FlexDowntimeStart = now
		dm.disarm(id)
		dm.HandleStart(id, now)
	}
}

func (dm *Manager) incrementPending(d *Downtime) {
	if d.IncrementedPendingDowntime {
		return
	}
	d.IncrementedPendingDowntime = true
	if c := dm.target(d); c != nil {
		c.PendingFlexDowntime++
	}
}

func (dm *Manager) decrementPending(d *Downtime) {
	if !d.IncrementedPendingDowntime {
		return
	}
	d.IncrementedPendingDowntime = false
	if c := dm.target(d); c != nil && c.PendingFlexDowntime > 0 {
		c.PendingFlexDowntime--
	}
}

// Get returns a downtime by id.
func (dm *Manager) Get(id uint64) *Downtime {
	return dm.downtimes[id]
}

// For returns the downtimes of one checkable ordered by id.
func (dm *Manager) For(id objects.ID) []*Downtime {
	var out []*Downtime
	for _, d := range dm.downtimes {
		if d.CheckableID == id {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns all downtimes sorted by start time.
func (dm *Manager) All() []*Downtime {
	result := make([]*Downtime, 0, len(dm.downtimes))
	for _, d := range dm.downtimes {
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			// Untriggered sorts before triggered
			if (result[i].TriggeredBy == 0) != (result[j].TriggeredBy == 0) {
				return result[i].TriggeredBy == 0
			}
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

// NextID returns the id the next downtime will get.
func (dm *Manager) NextID() uint64 { return dm.nextID }

// SetNextID raises the next downtime id to at least id.
func (dm *Manager) SetNextID(id uint64) {
	if id > dm.nextID {
		dm.nextID = id
	}
}

// DeleteFor removes every downtime and comment of a checkable. It runs
// before the object leaves the registry.
func (dm *Manager) DeleteFor(c *objects.Checkable, now time.Time) {
	for _, d := range dm.For(c.ID) {
		dm.Unschedule(d.ID, now)
	}
	dm.comments.DeleteFor(c.ID)
}

// Relink moves downtimes onto the checkables of a new registry after a
// reload, dropping those whose object disappeared.
func (dm *Manager) Relink(reg *objects.Registry) {
	dm.reg = reg
	for _, d := range dm.All() {
		target := lookup(reg, d.HostName, d.Description)
		if target == nil {
			dm.disarm(d.ID)
			delete(dm.downtimes, d.ID)
			continue
		}
		d.CheckableID = target.ID
	}
}

func capitalized(c *objects.Checkable) string {
	if c.IsHost() {
		return "Host"
	}
	return "Service"
}
