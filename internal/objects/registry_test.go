package objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

func TestRegistryDuplicateHost(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddHost(NewHost("test-host")))
	assert.Error(t, r.AddHost(NewHost("test-host")))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	h := NewHost("web-01")
	h.Address = "10.0.0.1"
	require.NoError(t, r.AddHost(h))

	got := r.Host("web-01")
	require.NotNil(t, got)
	assert.Equal(t, "10.0.0.1", got.Address)
	assert.Same(t, h, r.Lookup(h.ID))
	assert.Nil(t, r.Host("nonexistent"))
}

func TestRegistryServiceLinksHost(t *testing.T) {
	r := NewRegistry()
	h := NewHost("web-01")
	require.NoError(t, r.AddHost(h))

	svc := NewService("web-01", "HTTP")
	require.NoError(t, r.AddService(svc))
	assert.Same(t, h, svc.Host)
	assert.Equal(t, []*Checkable{svc}, h.Services)
	assert.Same(t, svc, r.Service("web-01", "HTTP"))
	assert.Equal(t, "web-01;HTTP", svc.String())

	assert.Error(t, r.AddService(NewService("web-01", "HTTP")), "duplicate")
	assert.Error(t, r.AddService(NewService("ghost", "HTTP")), "unknown host")
}

func TestRegistryKeepsInsertionOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddHost(NewHost("b")))
	require.NoError(t, r.AddHost(NewHost("a")))
	require.NoError(t, r.AddService(NewService("a", "x")))

	var keys []string
	for _, c := range r.Checkables() {
		keys = append(keys, c.String())
	}
	assert.Equal(t, []string{"b", "a", "a;x"}, keys)
	assert.Len(t, r.Hosts(), 2)
	assert.Len(t, r.Services(), 1)
}

func TestRegistryRemoveHostRemovesServices(t *testing.T) {
	r := NewRegistry()
	parent := NewHost("router")
	h := NewHost("web-01")
	require.NoError(t, r.AddHost(parent))
	require.NoError(t, r.AddHost(h))
	r.AddParent(h, parent)
	svc := NewService("web-01", "HTTP")
	require.NoError(t, r.AddService(svc))
	require.NoError(t, r.AddEscalation(&Escalation{HostName: "web-01", Description: "HTTP", Checkable: svc}))

	removed := r.Remove(h.ID)
	assert.ElementsMatch(t, []*Checkable{h, svc}, removed)
	assert.Nil(t, r.Lookup(h.ID))
	assert.Nil(t, r.Lookup(svc.ID))
	assert.Nil(t, r.Service("web-01", "HTTP"))
	assert.Empty(t, parent.Children)
	assert.Empty(t, r.Escalations)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryIDsAreNotReused(t *testing.T) {
	r := NewRegistry()
	a := NewHost("a")
	require.NoError(t, r.AddHost(a))
	old := a.ID
	r.Remove(old)

	b := NewHost("a")
	require.NoError(t, r.AddHost(b))
	assert.NotEqual(t, old, b.ID)
	assert.Nil(t, r.Lookup(old))
}

func TestRegistryDependencies(t *testing.T) {
	r := NewRegistry()
	db, web := NewHost("db"), NewHost("web")
	require.NoError(t, r.AddHost(db))
	require.NoError(t, r.AddHost(web))

	d := &Dependency{Dependent: web, Master: db, NotificationFailureOptions: OptDown}
	require.NoError(t, r.AddDependency(d))
	assert.Len(t, web.NotifyDeps, 1)
	assert.Empty(t, web.ExecDeps)

	r.Remove(db.ID)
	assert.Empty(t, web.NotifyDeps)
	assert.Empty(t, r.Dependencies)
}

func TestRegistryNamedObjects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.AddCommand(&Command{Name: "check_ping"}))
	assert.Error(t, r.AddCommand(&Command{Name: "check_ping"}))
	require.NoError(t, r.AddContact(&Contact{Name: "ops"}))
	require.NoError(t, r.AddContactGroup(&ContactGroup{Name: "admins"}))
	require.NoError(t, r.AddTimeperiod(timeperiod.Always("24x7")))
	assert.Error(t, r.AddTimeperiod(timeperiod.New("24x7")))

	assert.NotNil(t, r.Command("check_ping"))
	assert.NotNil(t, r.Contact("ops"))
	assert.NotNil(t, r.ContactGroup("admins"))
	assert.NotNil(t, r.Timeperiod("24x7"))
}

func TestRegistryRenumberKeepsSurvivorIDs(t *testing.T) {
	old := NewRegistry()
	require.NoError(t, old.AddHost(NewHost("a")))
	require.NoError(t, old.AddHost(NewHost("b")))
	require.NoError(t, old.AddService(NewService("b", "ping")))

	r := NewRegistry()
	require.NoError(t, r.AddHost(NewHost("c")))
	require.NoError(t, r.AddHost(NewHost("b")))
	require.NoError(t, r.AddService(NewService("b", "ping")))
	r.Renumber(old)

	assert.Equal(t, old.Host("b").ID, r.Host("b").ID)
	assert.Equal(t, old.Service("b", "ping").ID, r.Service("b", "ping").ID)
	assert.Equal(t, ID(4), r.Host("c").ID, "new objects are numbered after the old ones")
	assert.Same(t, r.Host("c"), r.Lookup(4))
	assert.Nil(t, r.Lookup(1), "a's id is not taken over")

	names := []string{}
	for _, c := range r.Checkables() {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{"c", "b", "b;ping"}, names)

	require.NoError(t, r.AddHost(NewHost("d")))
	assert.Equal(t, ID(5), r.Host("d").ID)
}
