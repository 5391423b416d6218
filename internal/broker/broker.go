// Package broker publishes state-change records to interested sinks.
package broker

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// Type classifies a broker event.
type Type string

const (
	TypeStateChange     Type = "state_change"
	TypeNotification    Type = "notification"
	TypeAcknowledgement Type = "acknowledgement"
	TypeFlapping        Type = "flapping"
	TypeDowntime        Type = "downtime"
	TypeComment         Type = "comment"
	TypeProgram         Type = "program"
)

// Event is one record handed to sinks. IDs are ULIDs, so they sort by
// creation time.
type Event struct {
	ID               ulid.ULID  `json:"id"`
	Instance         string     `json:"instance"`
	Type             Type       `json:"type"`
	Time             time.Time  `json:"time"`
	CheckableID      objects.ID `json:"checkable_id,omitempty"`
	HostName         string     `json:"host_name,omitempty"`
	Description      string     `json:"service_description,omitempty"`
	OldState         int        `json:"old_state"`
	NewState         int        `json:"new_state"`
	StateType        int        `json:"state_type"`
	HardChange       bool       `json:"hard_change,omitempty"`
	NotificationType string     `json:"notification_type,omitempty"`
	Message          string     `json:"message,omitempty"`
}

// Sink receives published events. Publish is called from the scheduler
// loop and must not block.
type Sink interface {
	Publish(e Event)
}

// Broker stamps events and fans them out to its sinks. A nil *Broker
// discards everything.
type Broker struct {
	instance string

	mu      sync.Mutex
	entropy io.Reader
	sinks   []Sink
}

// New creates a broker for the given engine instance.
func New(instance string, sinks ...Sink) *Broker {
	return &Broker{
		instance: instance,
		entropy:  ulid.Monotonic(rand.Reader, 0),
		sinks:    sinks,
	}
}

// Add registers another sink.
func (b *Broker) Add(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish assigns an ID and instance to e and delivers it.
func (b *Broker) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	e.ID = ulid.MustNew(ulid.Timestamp(e.Time), b.entropy)
	sinks := b.sinks
	b.mu.Unlock()

	e.Instance = b.instance
	for _, s := range sinks {
		s.Publish(e)
	}
}

func base(t Type, c *objects.Checkable, now time.Time) Event {
	return Event{
		Type:        t,
		Time:        now,
		CheckableID: c.ID,
		HostName:    c.HostName,
		Description: c.Description,
		NewState:    c.CurrentState,
		StateType:   c.StateType,
	}
}

// StateChange publishes a state-change record for c.
func (b *Broker) StateChange(c *objects.Checkable, oldState int, hardChange bool, now time.Time) {
	e := base(TypeStateChange, c, now)
	e.OldState = oldState
	e.HardChange = hardChange
	e.Message = c.PluginOutput
	b.Publish(e)
}

// Notification publishes a sent notification.
func (b *Broker) Notification(c *objects.Checkable, ntype int, now time.Time) {
	e := base(TypeNotification, c, now)
	e.OldState = c.LastState
	e.NotificationType = objects.NotificationTypeName(ntype, c.CurrentState)
	e.Message = c.PluginOutput
	b.Publish(e)
}

// Annotation publishes a downtime, comment, acknowledgement or flapping
// record with a free-form message.
func (b *Broker) Annotation(t Type, c *objects.Checkable, message string, now time.Time) {
	e := base(t, c, now)
	e.Message = message
	b.Publish(e)
}

// LogSink writes events to a logger at debug level.
type LogSink struct {
	Log logrus.FieldLogger
}

func (s LogSink) Publish(e Event) {
	s.Log.WithFields(logrus.Fields{
		"event_id":   e.ID.String(),
		"event_type": string(e.Type),
		"host":       e.HostName,
		"service":    e.Description,
		"old_state":  e.OldState,
		"new_state":  e.NewState,
	}).Debug(e.Message)
}

// ChanSink delivers events to a buffered channel, dropping them when the
// consumer falls behind.
type ChanSink struct {
	C chan Event

	mu      sync.Mutex
	dropped int
}

// NewChanSink returns a sink with the given buffer size.
func NewChanSink(size int) *ChanSink {
	return &ChanSink{C: make(chan Event, size)}
}

func (s *ChanSink) Publish(e Event) {
	select {
	case s.C <- e:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Dropped returns how many events did not fit in the buffer.
func (s *ChanSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// FuncSink adapts a function to a Sink.
type FuncSink func(e Event)

func (f FuncSink) Publish(e Event) { f(e) }
