package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/centreon/centreon-engine-sub012/internal/config"
	"github.com/centreon/centreon-engine-sub012/internal/objects"
)

const base = `
timeperiod:
  - timeperiod_name: 24x7
    sunday: 00:00-24:00
    monday: 00:00-24:00
    tuesday: 00:00-24:00
    wednesday: 00:00-24:00
    thursday: 00:00-24:00
    friday: 00:00-24:00
    saturday: 00:00-24:00
  - timeperiod_name: workhours
    monday: 09:00-17:00
    december 25: 00:00-00:00
    exclude: holidays
  - timeperiod_name: holidays
    january 1: 00:00-24:00
command:
  - command_name: check_ping
    command_line: $USER1$/check_ping -H $HOSTADDRESS$
  - command_name: check_http
    command_line: $USER1$/check_http -H $HOSTADDRESS$ -p $ARG1$
  - command_name: notify-email
    command_line: /bin/mail $CONTACTEMAIL$
contact:
  - name: generic-contact
    register: "0"
    host_notification_period: 24x7
    service_notification_period: 24x7
    host_notification_commands: notify-email
    service_notification_commands: notify-email
    service_notification_options: w,c,r
  - contact_name: alice
    use: generic-contact
    email: alice@example.com
    contactgroups: admins
  - contact_name: bob
    use: generic-contact
contactgroup:
  - contactgroup_name: admins
    members: bob
host:
  - name: generic-host
    register: "0"
    check_command: check_ping
    max_check_attempts: "3"
    contact_groups: admins
    _SNMP_COMMUNITY: public
  - host_name: gw
    use: generic-host
    address: 10.0.0.1
  - host_name: web01
    use: generic-host
    parents: gw
    address: 10.0.0.10
  - host_name: web02
    use: generic-host
    parents: gw
service:
  - service_description: HTTP
    host_name: web01,web02
    check_command: check_http!8080
    check_interval: "2"
    retry_interval: "0.5"
    contacts: alice
    check_period: workhours
`

func resolveYAML(t *testing.T, doc string) (*objects.Registry, Result) {
	t.Helper()
	ds, err := config.ParseObjects([]byte(doc), "test.yaml")
	require.NoError(t, err)
	return Resolve(ds)
}

func TestResolveBase(t *testing.T) {
	reg, res := resolveYAML(t, base)
	require.True(t, res.OK(), "%v", res.Err)
	assert.Zero(t, res.Warnings, "%v", res.Warn)

	assert.Len(t, reg.Hosts(), 3)
	assert.Len(t, reg.Services(), 2)

	web01 := reg.Host("web01")
	require.NotNil(t, web01)
	assert.Equal(t, "10.0.0.10", web01.Address)
	assert.Equal(t, "public", web01.CustomVars["SNMP_COMMUNITY"])
	require.Len(t, web01.Parents, 1)
	assert.Equal(t, "gw", web01.Parents[0].HostName)
	assert.Len(t, reg.Host("gw").Children, 2)
	assert.Equal(t, "web02", reg.Host("web02").Address, "address defaults to the host name")

	svc := reg.Service("web02", "HTTP")
	require.NotNil(t, svc)
	assert.Same(t, reg.Host("web02"), svc.Host)
	assert.Equal(t, "check_http", svc.CheckCommand.Name)
	assert.Equal(t, "8080", svc.CheckCommandArgs)
	assert.Equal(t, 2.0, svc.CheckInterval)
	assert.Equal(t, 0.5, svc.RetryInterval)
	assert.Equal(t, "workhours", svc.CheckPeriod.Name)
	require.Len(t, svc.Contacts, 1)
	assert.Equal(t, "alice", svc.Contacts[0].Name)

	alice := reg.Contact("alice")
	assert.Equal(t, objects.OptWarning|objects.OptCritical|objects.OptRecovery, alice.ServiceNotificationOptions)
	assert.Equal(t, objects.OptAll, alice.HostNotificationOptions)
	require.Len(t, alice.ServiceNotificationCommands, 1)
	assert.Len(t, reg.ContactGroup("admins").Members, 2)
	assert.Len(t, alice.ContactGroups, 1)

	wh := reg.Timeperiod("workhours")
	require.Len(t, wh.Exclusions, 1)
	assert.Len(t, wh.Exceptions, 1)
	monday := time.Date(2024, 7, 8, 10, 0, 0, 0, time.UTC)
	assert.True(t, wh.IsCovered(monday))
	assert.False(t, wh.IsCovered(monday.Add(8*time.Hour)))
}

func TestUnresolvedReferences(t *testing.T) {
	_, res := resolveYAML(t, `
command:
  - command_name: check_ping
    command_line: /bin/true
host:
  - host_name: db01
    check_command: check_nothing
    check_period: never
    contacts: nobody
    parents: missing
service:
  - service_description: MySQL
    host_name: db01,db02
    check_command: check_ping
`)
	assert.False(t, res.OK())
	// check_command, check_period, contacts, parents, unknown host db02
	assert.Equal(t, 5, res.Errors, "%v", res.Err)
	assert.Len(t, multierr.Errors(res.Err), 5)
}

func TestMissingContactsWarns(t *testing.T) {
	_, res := resolveYAML(t, `
host:
  - host_name: lonely
  - host_name: quiet
    notifications_enabled: "0"
`)
	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Warnings)
	assert.Contains(t, res.Warn.Error(), "lonely")
}

func TestIllegalCharacters(t *testing.T) {
	for _, name := range []string{"web$01", "a,b", "x=y", "quote'd", "pipe|"} {
		_, res := resolveYAML(t, "host:\n  - host_name: \""+name+"\"\n    notifications_enabled: \"0\"\n")
		assert.Equal(t, 1, res.Errors, name)
	}
	_, res := resolveYAML(t, "host:\n  - host_name: web-01.example_com\n    notifications_enabled: \"0\"\n")
	assert.True(t, res.OK(), "%v", res.Err)
}

func TestInvalidIntervals(t *testing.T) {
	cases := map[string]string{
		"negative check":   `check_interval: "-1"`,
		"zero retry":       `retry_interval: "0"`,
		"zero attempts":    `max_check_attempts: "0"`,
		"not a number":     `check_interval: soon`,
		"bad notification": `notification_interval: "-5"`,
	}
	for name, attr := range cases {
		t.Run(name, func(t *testing.T) {
			_, res := resolveYAML(t, "host:\n  - host_name: h1\n    notifications_enabled: \"0\"\n    "+attr+"\n")
			assert.Equal(t, 1, res.Errors, "%v", res.Err)
		})
	}

	reg, res := resolveYAML(t, "host:\n  - host_name: passive\n    check_interval: \"0\"\n    notifications_enabled: \"0\"\n")
	require.True(t, res.OK(), "%v", res.Err)
	assert.Zero(t, reg.Host("passive").CheckInterval)
}

func TestEscalations(t *testing.T) {
	reg, res := resolveYAML(t, base+`
hostescalation:
  - host_name: web01
    contacts: alice
    first_notification: "2"
    last_notification: "4"
  - host_name: ghost
    contacts: alice
  - host_name: web01
    contacts: nobody
serviceescalation:
  - host_name: web01
    service_description: HTTP
    contact_groups: admins
    escalation_period: workhours
    escalation_options: c,r
`)
	assert.Equal(t, 2, res.Errors, "%v", res.Err)
	require.Len(t, reg.Escalations, 2)

	he := reg.Host("web01").Escalations
	require.Len(t, he, 1)
	assert.Equal(t, 2, he[0].FirstNotification)
	assert.Equal(t, 4, he[0].LastNotification)
	assert.Equal(t, -1.0, he[0].NotificationInterval, "interval defaults to the object's")

	se := reg.Service("web01", "HTTP").Escalations
	require.Len(t, se, 1)
	assert.Equal(t, objects.OptCritical|objects.OptRecovery, se[0].EscalationOptions)
	assert.Equal(t, "workhours", se[0].EscalationPeriod.Name)
}

func TestDependencies(t *testing.T) {
	reg, res := resolveYAML(t, base+`
hostdependency:
  - host_name: gw
    dependent_host_name: web01,web02
    notification_failure_options: d,u
servicedependency:
  - host_name: web01
    service_description: HTTP
    dependent_host_name: web02
    dependent_service_description: HTTP
    execution_failure_options: c
    notification_failure_options: w,c
`)
	require.True(t, res.OK(), "%v", res.Err)
	assert.Len(t, reg.Dependencies, 3)

	web01 := reg.Host("web01")
	assert.Len(t, web01.NotifyDeps, 1)
	assert.Empty(t, web01.ExecDeps)

	svc := reg.Service("web02", "HTTP")
	require.Len(t, svc.ExecDeps, 1)
	assert.Same(t, reg.Service("web01", "HTTP"), svc.ExecDeps[0].Master)
	assert.Len(t, svc.NotifyDeps, 1)
}

func TestCycles(t *testing.T) {
	_, res := resolveYAML(t, `
host:
  - host_name: a
    parents: b
    notifications_enabled: "0"
  - host_name: b
    parents: a
    notifications_enabled: "0"
`)
	assert.Equal(t, 1, res.Errors, "%v", res.Err)
	assert.Contains(t, res.Err.Error(), "circular parent")

	_, res = resolveYAML(t, `
timeperiod:
  - timeperiod_name: one
    exclude: two
  - timeperiod_name: two
    exclude: one
`)
	assert.Equal(t, 1, res.Errors, "%v", res.Err)

	_, res = resolveYAML(t, `
host:
  - host_name: a
    notifications_enabled: "0"
  - host_name: b
    notifications_enabled: "0"
hostdependency:
  - host_name: a
    dependent_host_name: b
    execution_failure_options: d
  - host_name: b
    dependent_host_name: a
    execution_failure_options: d
`)
	assert.Equal(t, 1, res.Errors, "%v", res.Err)
	assert.Contains(t, res.Err.Error(), "circular dependency")
}

func TestDuplicateHost(t *testing.T) {
	reg, res := resolveYAML(t, `
host:
  - host_name: a
    notifications_enabled: "0"
  - host_name: a
    notifications_enabled: "0"
`)
	assert.Equal(t, 1, res.Errors)
	assert.Len(t, reg.Hosts(), 1)
}
