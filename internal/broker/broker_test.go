package broker

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

var now = time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)

func TestPublishStampsEvents(t *testing.T) {
	sink := NewChanSink(10)
	b := New("instance-1", sink)

	svc := objects.NewService("web", "http")
	svc.ID = 5
	svc.CurrentState = objects.ServiceCritical
	svc.PluginOutput = "refused"
	b.StateChange(svc, objects.ServiceOK, true, now)
	b.StateChange(svc, objects.ServiceCritical, false, now)

	first := <-sink.C
	second := <-sink.C
	assert.Equal(t, "instance-1", first.Instance)
	assert.Equal(t, TypeStateChange, first.Type)
	assert.Equal(t, objects.ID(5), first.CheckableID)
	assert.Equal(t, objects.ServiceOK, first.OldState)
	assert.Equal(t, objects.ServiceCritical, first.NewState)
	assert.True(t, first.HardChange)
	assert.Equal(t, "refused", first.Message)
	assert.Equal(t, uint64(now.UnixMilli()), first.ID.Time())
	assert.Equal(t, -1, first.ID.Compare(second.ID), "ids increase within a millisecond")
}

func TestNotificationEvent(t *testing.T) {
	var got []Event
	b := New("i", FuncSink(func(e Event) { got = append(got, e) }))

	h := objects.NewHost("router")
	h.CurrentState = objects.HostDown
	b.Notification(h, objects.NotificationNormal, now)
	b.Notification(h, objects.NotificationAcknowledgement, now)

	require.Len(t, got, 2)
	assert.Equal(t, "PROBLEM", got[0].NotificationType)
	assert.Equal(t, "ACKNOWLEDGEMENT", got[1].NotificationType)
	assert.Empty(t, got[0].Description)
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	sink := NewChanSink(1)
	b := New("i")
	b.Add(sink)

	h := objects.NewHost("h")
	b.Annotation(TypeComment, h, "one", now)
	b.Annotation(TypeComment, h, "two", now)

	assert.Equal(t, 1, sink.Dropped())
	assert.Equal(t, "one", (<-sink.C).Message)
}

func TestLogSink(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	b := New("i", LogSink{Log: log})

	b.Annotation(TypeDowntime, objects.NewService("h", "s"), "downtime started", now)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "downtime started", entry.Message)
	assert.Equal(t, "downtime", entry.Data["event_type"])
	assert.Equal(t, "s", entry.Data["service"])
}

func TestNilBrokerDiscards(t *testing.T) {
	var b *Broker
	assert.NotPanics(t, func() {
		b.StateChange(objects.NewHost("h"), 0, false, now)
	})
}

func TestPublishFillsTime(t *testing.T) {
	sink := NewChanSink(1)
	b := New("i", sink)
	b.Publish(Event{Type: TypeProgram, Message: "started"})
	e := <-sink.C
	assert.False(t, e.Time.IsZero())
}
