package objects

import (
	"fmt"

	"github.com/centreon/centreon-engine-sub012/internal/timeperiod"
)

// Registry owns every monitored object. Checkables are keyed by ID with
// name indices kept alongside; all other objects are keyed by name.
// A Registry is not safe for concurrent use: only the scheduler loop
// touches it.
type Registry struct {
	nextID     ID
	checkables map[ID]*Checkable
	order      []ID
	byKey      map[string]ID

	Commands      []*Command
	Contacts      []*Contact
	ContactGroups []*ContactGroup
	Timeperiods   []*timeperiod.Timeperiod
	Escalations   []*Escalation
	Dependencies  []*Dependency

	commandsByName      map[string]*Command
	contactsByName      map[string]*Contact
	contactGroupsByName map[string]*ContactGroup
	timeperiodsByName   map[string]*timeperiod.Timeperiod
}

func NewRegistry() *Registry {
	return &Registry{
		nextID:              1,
		checkables:          make(map[ID]*Checkable),
		byKey:               make(map[string]ID),
		commandsByName:      make(map[string]*Command),
		contactsByName:      make(map[string]*Contact),
		contactGroupsByName: make(map[string]*ContactGroup),
		timeperiodsByName:   make(map[string]*timeperiod.Timeperiod),
	}
}

func (r *Registry) insert(c *Checkable) {
	c.ID = r.nextID
	r.nextID++
	r.checkables[c.ID] = c
	r.order = append(r.order, c.ID)
	r.byKey[c.Key()] = c.ID
}

// AddHost registers a host and assigns its ID.
func (r *Registry) AddHost(h *Checkable) error {
	if h.Kind != KindHost {
		return fmt.Errorf("AddHost: %s is a %s", h, h.Kind)
	}
	if _, exists := r.byKey[h.Key()]; exists {
		return fmt.Errorf("duplicate host: %s", h.HostName)
	}
	r.insert(h)
	return nil
}

// AddService registers a service, links it to its host and assigns its ID.
// The host must already be registered.
func (r *Registry) AddService(svc *Checkable) error {
	if svc.Kind != KindService {
		return fmt.Errorf("AddService: %s is a %s", svc, svc.Kind)
	}
	host := r.Host(svc.HostName)
	if host == nil {
		return fmt.Errorf("service %s: unknown host %s", svc.Description, svc.HostName)
	}
	if _, exists := r.byKey[svc.Key()]; exists {
		return fmt.Errorf("duplicate service: %s/%s", svc.HostName, svc.Description)
	}
	svc.Host = host
	host.Services = append(host.Services, svc)
	r.insert(svc)
	return nil
}

// Lookup resolves an ID. Removed objects resolve to nil.
func (r *Registry) Lookup(id ID) *Checkable {
	return r.checkables[id]
}

// ByKey resolves a Checkable.Key.
func (r *Registry) ByKey(key string) *Checkable {
	id, ok := r.byKey[key]
	if !ok {
		return nil
	}
	return r.checkables[id]
}

func (r *Registry) Host(name string) *Checkable {
	return r.ByKey(name)
}

func (r *Registry) Service(hostName, description string) *Checkable {
	return r.ByKey(ServiceKey(hostName, description))
}

// Checkables returns every object in insertion order.
func (r *Registry) Checkables() []*Checkable {
	out := make([]*Checkable, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.checkables[id])
	}
	return out
}

func (r *Registry) Hosts() []*Checkable {
	return r.filter(KindHost)
}

func (r *Registry) Services() []*Checkable {
	return r.filter(KindService)
}

func (r *Registry) filter(k Kind) []*Checkable {
	var out []*Checkable
	for _, id := range r.order {
		if c := r.checkables[id]; c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// Renumber gives every checkable that also exists in old (by Key) the ID
// it had there, and numbers the rest after old's last ID. Queued events
// and in-flight results keep pointing at the right object across a reload.
func (r *Registry) Renumber(old *Registry) {
	next := old.nextID
	checkables := make(map[ID]*Checkable, len(r.checkables))
	order := make([]ID, 0, len(r.order))
	for _, id := range r.order {
		c := r.checkables[id]
		if prev := old.ByKey(c.Key()); prev != nil {
			c.ID = prev.ID
		} else {
			c.ID = next
			next++
		}
		checkables[c.ID] = c
		order = append(order, c.ID)
		r.byKey[c.Key()] = c.ID
	}
	r.checkables = checkables
	r.order = order
	r.nextID = next
}

// Len returns the number of registered checkables.
func (r *Registry) Len() int { return len(r.checkables) }

// Remove forgets a checkable; removing a host also removes its services.
// It returns every object removed so callers can cancel their events.
// Callers holding queued events must cancel them first.
func (r *Registry) Remove(id ID) []*Checkable {
	c := r.checkables[id]
	if c == nil {
		return nil
	}
	var removed []*Checkable
	if c.Kind == KindHost {
		for _, svc := range c.Services {
			removed = append(removed, r.forget(svc)...)
		}
		c.Services = nil
		for _, p := range c.Parents {
			p.Children = without(p.Children, c)
		}
		for _, ch := range c.Children {
			ch.Parents = without(ch.Parents, c)
		}
	} else if c.Host != nil {
		c.Host.Services = without(c.Host.Services, c)
	}
	return append(removed, r.forget(c)...)
}

func (r *Registry) forget(c *Checkable) []*Checkable {
	if _, ok := r.checkables[c.ID]; !ok {
		return nil
	}
	delete(r.checkables, c.ID)
	delete(r.byKey, c.Key())
	for i, id := range r.order {
		if id == c.ID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.Escalations = dropEscalations(r.Escalations, c)
	r.Dependencies = dropDependencies(r.Dependencies, c)
	return []*Checkable{c}
}

func without(list []*Checkable, c *Checkable) []*Checkable {
	out := list[:0]
	for _, x := range list {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}

func dropEscalations(list []*Escalation, c *Checkable) []*Escalation {
	out := list[:0]
	for _, e := range list {
		if e.Checkable != c {
			out = append(out, e)
		}
	}
	return out
}

func dropDependencies(list []*Dependency, c *Checkable) []*Dependency {
	out := list[:0]
	for _, d := range list {
		if d.Dependent == c {
			continue
		}
		if d.Master == c {
			d.Dependent.NotifyDeps = withoutDep(d.Dependent.NotifyDeps, d)
			d.Dependent.ExecDeps = withoutDep(d.Dependent.ExecDeps, d)
			continue
		}
		out = append(out, d)
	}
	return out
}

func withoutDep(list []*Dependency, d *Dependency) []*Dependency {
	out := list[:0]
	for _, x := range list {
		if x != d {
			out = append(out, x)
		}
	}
	return out
}

// AddParent links host as a child of parent.
func (r *Registry) AddParent(host, parent *Checkable) {
	host.Parents = append(host.Parents, parent)
	parent.Children = append(parent.Children, host)
}

// AddEscalation registers an escalation and attaches it to its checkable.
func (r *Registry) AddEscalation(e *Escalation) error {
	if e.Checkable == nil {
		return fmt.Errorf("escalation for %s has no checkable", escalationTarget(e))
	}
	r.Escalations = append(r.Escalations, e)
	e.Checkable.Escalations = append(e.Checkable.Escalations, e)
	return nil
}

func escalationTarget(e *Escalation) string {
	if e.Description != "" {
		return e.HostName + ";" + e.Description
	}
	return e.HostName
}

// AddDependency registers a dependency and attaches it to the dependent's
// execution and/or notification lists according to its failure options.
func (r *Registry) AddDependency(d *Dependency) error {
	if d.Dependent == nil || d.Master == nil {
		return fmt.Errorf("dependency with unresolved endpoint")
	}
	r.Dependencies = append(r.Dependencies, d)
	if d.ExecutionFailureOptions != OptNone {
		d.Dependent.ExecDeps = append(d.Dependent.ExecDeps, d)
	}
	if d.NotificationFailureOptions != OptNone {
		d.Dependent.NotifyDeps = append(d.Dependent.NotifyDeps, d)
	}
	return nil
}

func (r *Registry) AddCommand(c *Command) error {
	if _, exists := r.commandsByName[c.Name]; exists {
		return fmt.Errorf("duplicate command: %s", c.Name)
	}
	r.Commands = append(r.Commands, c)
	r.commandsByName[c.Name] = c
	return nil
}

func (r *Registry) Command(name string) *Command {
	return r.commandsByName[name]
}

func (r *Registry) AddContact(c *Contact) error {
	if _, exists := r.contactsByName[c.Name]; exists {
		return fmt.Errorf("duplicate contact: %s", c.Name)
	}
	r.Contacts = append(r.Contacts, c)
	r.contactsByName[c.Name] = c
	return nil
}

func (r *Registry) Contact(name string) *Contact {
	return r.contactsByName[name]
}

func (r *Registry) AddContactGroup(cg *ContactGroup) error {
	if _, exists := r.contactGroupsByName[cg.Name]; exists {
		return fmt.Errorf("duplicate contactgroup: %s", cg.Name)
	}
	r.ContactGroups = append(r.ContactGroups, cg)
	r.contactGroupsByName[cg.Name] = cg
	return nil
}

func (r *Registry) ContactGroup(name string) *ContactGroup {
	return r.contactGroupsByName[name]
}

func (r *Registry) AddTimeperiod(tp *timeperiod.Timeperiod) error {
	if _, exists := r.timeperiodsByName[tp.Name]; exists {
		return fmt.Errorf("duplicate timeperiod: %s", tp.Name)
	}
	r.Timeperiods = append(r.Timeperiods, tp)
	r.timeperiodsByName[tp.Name] = tp
	return nil
}

func (r *Registry) Timeperiod(name string) *timeperiod.Timeperiod {
	return r.timeperiodsByName[name]
}
