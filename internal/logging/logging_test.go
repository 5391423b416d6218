package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

func newTestLogger(s Settings) (*Logger, *test.Hook) {
	base, hook := test.NewNullLogger()
	return NewWithLogger(base, s), hook
}

func criticalService() *objects.Checkable {
	svc := objects.NewService("host1", "HTTP")
	svc.CurrentState = objects.ServiceCritical
	svc.StateType = objects.StateTypeHard
	svc.CurrentAttempt = 3
	svc.PluginOutput = "Connection refused"
	return svc
}

func TestLogWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	s := DefaultSettings()
	s.File = path
	s.Stdout = false

	l, err := New(s)
	require.NoError(t, err)
	l.Log("Test message %d", 42)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Test message 42")
}

func TestJSONFormatAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	l, err := New(Settings{Level: "warn", Format: "json", File: path})
	require.NoError(t, err)
	defer l.Close()

	l.Log("dropped at warn level")
	l.FieldLogger().WithField("k", "v").Warn("kept")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"msg":"kept"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Settings{Level: "chatty"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, l.base.GetLevel())
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.log")
	l, err := New(Settings{File: path})
	require.NoError(t, err)
	defer l.Close()

	l.Log("before")
	require.NoError(t, os.Rename(path, filepath.Join(dir, "engine.log.1")))
	require.NoError(t, l.Reopen())
	l.Log("after")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after")
	assert.NotContains(t, string(data), "before")
}

func TestServiceAlert(t *testing.T) {
	l, hook := newTestLogger(DefaultSettings())
	l.Alert(criticalService())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "SERVICE ALERT: host1;HTTP;CRITICAL;HARD;3;Connection refused", entry.Message)
	assert.Equal(t, "host1", entry.Data["host"])
	assert.Equal(t, "HTTP", entry.Data["service"])
	assert.Equal(t, "CRITICAL", entry.Data["state"])
	assert.Equal(t, 3, entry.Data["attempt"])
}

func TestHostAlert(t *testing.T) {
	l, hook := newTestLogger(DefaultSettings())
	h := objects.NewHost("router")
	h.CurrentState = objects.HostDown
	h.StateType = objects.StateTypeSoft
	h.CurrentAttempt = 1
	h.PluginOutput = "PING CRITICAL"
	l.Alert(h)

	assert.Equal(t, "HOST ALERT: router;DOWN;SOFT;1;PING CRITICAL", hook.LastEntry().Message)
	_, hasService := hook.LastEntry().Data["service"]
	assert.False(t, hasService)
}

func TestSoftAlertsFollowRetryToggle(t *testing.T) {
	s := DefaultSettings()
	s.LogServiceRetries = false
	l, hook := newTestLogger(s)

	svc := criticalService()
	svc.StateType = objects.StateTypeSoft
	l.Alert(svc)
	assert.Empty(t, hook.AllEntries())

	svc.StateType = objects.StateTypeHard
	l.Alert(svc)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestNotificationLines(t *testing.T) {
	l, hook := newTestLogger(DefaultSettings())
	svc := criticalService()

	l.Notification("admin", svc, objects.NotificationNormal, "notify-by-email", "", "")
	assert.Equal(t, "SERVICE NOTIFICATION: admin;host1;HTTP;CRITICAL;notify-by-email;Connection refused", hook.LastEntry().Message)
	assert.Equal(t, "admin", hook.LastEntry().Data["contact"])

	l.Notification("admin", svc, objects.NotificationAcknowledgement, "notify-by-email", "jdoe", "on it")
	assert.Equal(t, "SERVICE NOTIFICATION: admin;host1;HTTP;ACKNOWLEDGEMENT (CRITICAL);notify-by-email;Connection refused;jdoe;on it", hook.LastEntry().Message)

	h := objects.NewHost("router")
	h.PluginOutput = "PING OK"
	l.Notification("ops", h, objects.NotificationNormal, "page", "", "")
	assert.Equal(t, "HOST NOTIFICATION: ops;router;UP;page;PING OK", hook.LastEntry().Message)
}

func TestNotificationsToggle(t *testing.T) {
	s := DefaultSettings()
	s.LogNotifications = false
	l, hook := newTestLogger(s)
	l.Notification("admin", criticalService(), objects.NotificationNormal, "cmd", "", "")
	assert.Empty(t, hook.AllEntries())
}

func TestFlappingAndDowntime(t *testing.T) {
	l, hook := newTestLogger(DefaultSettings())
	svc := criticalService()

	l.Flapping(svc, true, 35.5, 30)
	assert.Equal(t, "SERVICE FLAPPING ALERT: host1;HTTP;STARTED; Service appears to have started flapping (35.5% change >= 30.0% threshold)", hook.LastEntry().Message)

	h := objects.NewHost("router")
	l.Flapping(h, false, 12, 20)
	assert.Equal(t, "HOST FLAPPING ALERT: router;STOPPED; Host appears to have stopped flapping (12.0% change < 20.0% threshold)", hook.LastEntry().Message)

	l.Downtime(svc, "STARTED", "Service has entered a period of scheduled downtime")
	assert.Equal(t, "SERVICE DOWNTIME ALERT: host1;HTTP;STARTED; Service has entered a period of scheduled downtime", hook.LastEntry().Message)
}

func TestPassiveAndInitialState(t *testing.T) {
	s := DefaultSettings()
	s.LogInitialStates = true
	l, hook := newTestLogger(s)
	svc := criticalService()

	l.PassiveCheck(svc, 2, "down")
	assert.Equal(t, "PASSIVE SERVICE CHECK: host1;HTTP;2;down", hook.LastEntry().Message)

	l.InitialState(svc)
	assert.Equal(t, "INITIAL SERVICE STATE: host1;HTTP;CRITICAL;HARD;3;Connection refused", hook.LastEntry().Message)
}
