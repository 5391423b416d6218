// Package logging sets up the engine logger and writes the classic alert,
// notification and downtime log lines as structured logrus entries.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

// Settings controls where and what the engine logs.
type Settings struct {
	Level             string `yaml:"level" envconfig:"LEVEL"`
	Format            string `yaml:"format" envconfig:"FORMAT"` // text or json
	File              string `yaml:"file" envconfig:"FILE"`
	Stdout            bool   `yaml:"stdout" envconfig:"STDOUT"`
	LogNotifications  bool   `yaml:"log_notifications"`
	LogServiceRetries bool   `yaml:"log_service_retries"`
	LogHostRetries    bool   `yaml:"log_host_retries"`
	LogPassiveChecks  bool   `yaml:"log_passive_checks"`
	LogInitialStates  bool   `yaml:"log_initial_states"`
}

// DefaultSettings logs text at info level to stdout.
func DefaultSettings() Settings {
	return Settings{
		Level:             "info",
		Format:            "text",
		Stdout:            true,
		LogNotifications:  true,
		LogServiceRetries: true,
		LogHostRetries:    true,
		LogPassiveChecks:  true,
	}
}

// Logger wraps a logrus logger with the engine's domain log lines.
type Logger struct {
	mu       sync.Mutex
	base     *logrus.Logger
	file     *os.File
	settings Settings
}

// New builds a logger from s, opening s.File for appending when set.
func New(s Settings) (*Logger, error) {
	base := logrus.New()
	level, err := logrus.ParseLevel(s.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)
	if s.Format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l := &Logger{base: base, settings: s}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// NewWithLogger wraps an existing logrus logger, typically a test logger.
func NewWithLogger(base *logrus.Logger, s Settings) *Logger {
	return &Logger{base: base, settings: s}
}

func (l *Logger) open() error {
	var writers []io.Writer
	if l.settings.File != "" {
		f, err := os.OpenFile(l.settings.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", l.settings.File, err)
		}
		l.file = f
		writers = append(writers, f)
	}
	if l.settings.Stdout || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	l.base.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Reopen closes and reopens the log file, for external log rotation.
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	return l.open()
}

// Close closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// FieldLogger returns the underlying logger for components that log
// operational messages.
func (l *Logger) FieldLogger() logrus.FieldLogger {
	return l.base
}

// Log writes an informational message.
func (l *Logger) Log(format string, args ...interface{}) {
	l.base.Infof(format, args...)
}

func objectFields(c *objects.Checkable) logrus.Fields {
	f := logrus.Fields{
		"host":       c.HostName,
		"state":      c.StateName(c.CurrentState),
		"state_type": objects.StateTypeName(c.StateType),
		"attempt":    c.CurrentAttempt,
	}
	if c.IsService() {
		f["service"] = c.Description
	}
	return f
}

// Alert logs a state change. Soft alerts are subject to the retry
// logging toggles.
func (l *Logger) Alert(c *objects.Checkable) {
	if c.StateType == objects.StateTypeSoft {
		if c.IsHost() && !l.settings.LogHostRetries {
			return
		}
		if c.IsService() && !l.settings.LogServiceRetries {
			return
		}
	}
	entry := l.base.WithFields(objectFields(c))
	if c.IsHost() {
		entry.Infof("HOST ALERT: %s;%s;%s;%d;%s",
			c.HostName,
			objects.HostStateName(c.CurrentState),
			objects.StateTypeName(c.StateType),
			c.CurrentAttempt, c.PluginOutput)
		return
	}
	entry.Infof("SERVICE ALERT: %s;%s;%s;%s;%d;%s",
		c.HostName, c.Description,
		objects.ServiceStateName(c.CurrentState),
		objects.StateTypeName(c.StateType),
		c.CurrentAttempt, c.PluginOutput)
}

// Notification logs one contact notification.
func (l *Logger) Notification(contact string, c *objects.Checkable, ntype int, cmdName, author, comment string) {
	if !l.settings.LogNotifications {
		return
	}
	typeName := c.StateName(c.CurrentState)
	if ntype != objects.NotificationNormal {
		typeName = fmt.Sprintf("%s (%s)", objects.NotificationTypeName(ntype, c.CurrentState), typeName)
	}
	var msg string
	if c.IsHost() {
		msg = fmt.Sprintf("HOST NOTIFICATION: %s;%s;%s;%s;%s",
			contact, c.HostName, typeName, cmdName, c.PluginOutput)
	} else {
		msg = fmt.Sprintf("SERVICE NOTIFICATION: %s;%s;%s;%s;%s;%s",
			contact, c.HostName, c.Description, typeName, cmdName, c.PluginOutput)
	}
	if author != "" || comment != "" {
		msg += ";" + author + ";" + comment
	}
	l.base.WithFields(objectFields(c)).WithField("contact", contact).Info(msg)
}

// Flapping logs the start or stop of flapping.
func (l *Logger) Flapping(c *objects.Checkable, started bool, pct, threshold float64) {
	action, verb, cmp := "STOPPED", "stopped", "<"
	if started {
		action, verb, cmp = "STARTED", "started", ">="
	}
	what := "Service"
	prefix := fmt.Sprintf("SERVICE FLAPPING ALERT: %s;%s;", c.HostName, c.Description)
	if c.IsHost() {
		what = "Host"
		prefix = fmt.Sprintf("HOST FLAPPING ALERT: %s;", c.HostName)
	}
	l.base.WithFields(objectFields(c)).WithField("percent_state_change", pct).Infof(
		"%s%s; %s appears to have %s flapping (%.1f%% change %s %.1f%% threshold)",
		prefix, action, what, verb, pct, cmp, threshold)
}

// Downtime logs a downtime transition: STARTED, STOPPED or CANCELLED.
func (l *Logger) Downtime(c *objects.Checkable, action, message string) {
	entry := l.base.WithFields(objectFields(c))
	if c.IsHost() {
		entry.Infof("HOST DOWNTIME ALERT: %s;%s; %s", c.HostName, action, message)
		return
	}
	entry.Infof("SERVICE DOWNTIME ALERT: %s;%s;%s; %s", c.HostName, c.Description, action, message)
}

// PassiveCheck logs a received passive result.
func (l *Logger) PassiveCheck(c *objects.Checkable, returnCode int, output string) {
	if !l.settings.LogPassiveChecks {
		return
	}
	if c.IsHost() {
		l.base.Infof("PASSIVE HOST CHECK: %s;%d;%s", c.HostName, returnCode, output)
		return
	}
	l.base.Infof("PASSIVE SERVICE CHECK: %s;%s;%d;%s", c.HostName, c.Description, returnCode, output)
}

// InitialState logs an object's state at startup.
func (l *Logger) InitialState(c *objects.Checkable) {
	if !l.settings.LogInitialStates {
		return
	}
	entry := l.base.WithFields(objectFields(c))
	if c.IsHost() {
		entry.Infof("INITIAL HOST STATE: %s;%s;%s;%d;%s",
			c.HostName,
			objects.HostStateName(c.CurrentState),
			objects.StateTypeName(c.StateType),
			c.CurrentAttempt, c.PluginOutput)
		return
	}
	entry.Infof("INITIAL SERVICE STATE: %s;%s;%s;%s;%d;%s",
		c.HostName, c.Description,
		objects.ServiceStateName(c.CurrentState),
		objects.StateTypeName(c.StateType),
		c.CurrentAttempt, c.PluginOutput)
}
