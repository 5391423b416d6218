// Package downtime implements scheduled downtime and comment management.
// Start, end and expiry are driven by scheduler queue events.
package downtime

import (
	"sort"
	"time"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
	"github.com/centreon/centreon-engine-sub012/internal/scheduler"
)

// Timer queues the timed events that drive downtimes and comments.
// *scheduler.Scheduler satisfies it.
type Timer interface {
	ScheduleEvent(kind scheduler.Kind, due time.Time, payload uint64) scheduler.Handle
	CancelEvent(kind scheduler.Kind, payload uint64) bool
}

// Comment sources
const (
	SourceInternal = 0
	SourceExternal = 1
)

// Comment is a note attached to a host or service.
type Comment struct {
	ID          uint64     `json:"id"`
	CheckableID objects.ID `json:"-"`
	HostName    string     `json:"host_name"`
	Description string     `json:"service_description,omitempty"`
	EntryType   int        `json:"entry_type"`
	Source      int        `json:"source"`
	Persistent  bool       `json:"persistent"`
	EntryTime   time.Time  `json:"entry_time"`
	Expires     bool       `json:"expires"`
	ExpireTime  time.Time  `json:"expire_time"`
	Author      string     `json:"author"`
	Data        string     `json:"data"`
}

// Comments owns every comment. Not safe for concurrent use.
type Comments struct {
	comments map[uint64]*Comment
	nextID   uint64
	timer    Timer
}

// NewComments creates a comment store whose first id is startID. timer may
// be nil, in which case expiry must be driven by calling Expire.
func NewComments(startID uint64, timer Timer) *Comments {
	if startID == 0 {
		startID = 1
	}
	return &Comments{
		comments: make(map[uint64]*Comment),
		nextID:   startID,
		timer:    timer,
	}
}

// Add stores c, assigns its id and arms its expiry.
func (cm *Comments) Add(c *Comment, now time.Time) uint64 {
	c.ID = cm.nextID
	cm.nextID++
	if c.EntryTime.IsZero() {
		c.EntryTime = now
	}
	cm.comments[c.ID] = c
	cm.arm(c)
	return c.ID
}

// AddFor attaches a new comment to a checkable.
func (cm *Comments) AddFor(target *objects.Checkable, entryType int, persistent bool, author, data string, now time.Time) uint64 {
	return cm.Add(&Comment{
		CheckableID: target.ID,
		HostName:    target.HostName,
		Description: target.Description,
		EntryType:   entryType,
		Persistent:  persistent,
		Author:      author,
		Data:        data,
	}, now)
}

// Restore re-adds a comment with its original id, e.g. from retention.
func (cm *Comments) Restore(c *Comment) {
	cm.comments[c.ID] = c
	if c.ID >= cm.nextID {
		cm.nextID = c.ID + 1
	}
	cm.arm(c)
}

func (cm *Comments) arm(c *Comment) {
	if cm.timer != nil && c.Expires && !c.ExpireTime.IsZero() {
		cm.timer.ScheduleEvent(scheduler.EventExpireComment, c.ExpireTime, c.ID)
	}
}

// Delete removes a comment by id.
func (cm *Comments) Delete(id uint64) bool {
	c, ok := cm.comments[id]
	if !ok {
		return false
	}
	delete(cm.comments, id)
	if cm.timer != nil && c.Expires {
		cm.timer.CancelEvent(scheduler.EventExpireComment, id)
	}
	return true
}

// Get returns a comment by id.
func (cm *Comments) Get(id uint64) *Comment {
	return cm.comments[id]
}

// Expire handles a comment expiry event.
func (cm *Comments) Expire(id uint64, now time.Time) bool {
	c, ok := cm.comments[id]
	if !ok || !c.Expires || c.ExpireTime.After(now) {
		return false
	}
	return cm.Delete(id)
}

// For returns the comments of one checkable ordered by id.
func (cm *Comments) For(id objects.ID) []*Comment {
	var out []*Comment
	for _, c := range cm.comments {
		if c.CheckableID == id {
			out = append(out, c)
		}
	}
	sortComments(out)
	return out
}

// DeleteFor removes every comment of a checkable.
func (cm *Comments) DeleteFor(id objects.ID) int {
	n := 0
	for _, c := range cm.For(id) {
		if cm.Delete(c.ID) {
			n++
		}
	}
	return n
}

// DeleteAckComments removes the non-persistent acknowledgement comments
// of a checkable, once the problem they refer to is over.
func (cm *Comments) DeleteAckComments(id objects.ID) int {
	n := 0
	for _, c := range cm.For(id) {
		if c.EntryType == objects.AcknowledgementCommentEntry && !c.Persistent {
			cm.Delete(c.ID)
			n++
		}
	}
	return n
}

// All returns every comment ordered by id.
func (cm *Comments) All() []*Comment {
	out := make([]*Comment, 0, len(cm.comments))
	for _, c := range cm.comments {
		out = append(out, c)
	}
	sortComments(out)
	return out
}

// Relink points comments at the checkables of a new registry, dropping
// those whose object no longer exists.
func (cm *Comments) Relink(reg *objects.Registry) {
	for _, c := range cm.All() {
		target := lookup(reg, c.HostName, c.Description)
		if target == nil {
			cm.Delete(c.ID)
			continue
		}
		c.CheckableID = target.ID
	}
}

// NextID returns the id the next comment will get.
func (cm *Comments) NextID() uint64 { return cm.nextID }

// SetNextID raises the next comment id to at least id.
func (cm *Comments) SetNextID(id uint64) {
	if id > cm.nextID {
		cm.nextID = id
	}
}

func sortComments(list []*Comment) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}

func lookup(reg *objects.Registry, host, desc string) *objects.Checkable {
	if desc == "" {
		return reg.Host(host)
	}
	return reg.Service(host, desc)
}
