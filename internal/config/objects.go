package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Object definition types accepted in an objects document.
const (
	TypeTimeperiod        = "timeperiod"
	TypeCommand           = "command"
	TypeContact           = "contact"
	TypeContactGroup      = "contactgroup"
	TypeHost              = "host"
	TypeService           = "service"
	TypeHostEscalation    = "hostescalation"
	TypeServiceEscalation = "serviceescalation"
	TypeHostDependency    = "hostdependency"
	TypeServiceDependency = "servicedependency"
)

var knownTypes = map[string]bool{
	TypeTimeperiod: true, TypeCommand: true, TypeContact: true, TypeContactGroup: true,
	TypeHost: true, TypeService: true, TypeHostEscalation: true, TypeServiceEscalation: true,
	TypeHostDependency: true, TypeServiceDependency: true,
}

// Definition is one object definition before template inheritance and
// linking. Attribute names are the classic object directives
// (host_name, check_interval, contact_groups, ...).
type Definition struct {
	Type       string
	Attrs      map[string]string
	CustomVars map[string]string
	// Source is "file#index" for error messages.
	Source   string
	resolved bool
}

// Name is the template name, set by the "name" attribute.
func (d *Definition) Name() string {
	return d.Attrs["name"]
}

// Register reports whether the definition is a real object rather than a
// template only.
func (d *Definition) Register() bool {
	v, ok := d.Attrs["register"]
	if !ok {
		return true
	}
	return v != "0" && !strings.EqualFold(v, "false")
}

func (d *Definition) Get(key string) (string, bool) {
	v, ok := d.Attrs[key]
	return v, ok
}

func (d *Definition) Has(key string) bool {
	_, ok := d.Attrs[key]
	return ok
}

// Definitions is an unresolved set of object definitions.
type Definitions struct {
	Objects []*Definition
	// byTypeName maps "type:name" to templates.
	byTypeName map[string]*Definition
}

func NewDefinitions() *Definitions {
	return &Definitions{byTypeName: make(map[string]*Definition)}
}

// Add appends def, indexing it as a template when it carries a name.
func (ds *Definitions) Add(def *Definition) error {
	if !knownTypes[def.Type] {
		return errors.Errorf("%s: unknown object type %q", def.Source, def.Type)
	}
	if name := def.Name(); name != "" {
		key := def.Type + ":" + name
		if _, exists := ds.byTypeName[key]; exists {
			return errors.Errorf("%s: duplicate template name '%s' for type '%s'", def.Source, name, def.Type)
		}
		ds.byTypeName[key] = def
	}
	ds.Objects = append(ds.Objects, def)
	return nil
}

// Template finds a template by type and name.
func (ds *Definitions) Template(objType, name string) *Definition {
	return ds.byTypeName[objType+":"+name]
}

// OfType returns the registered definitions of one type in document order.
func (ds *Definitions) OfType(objType string) []*Definition {
	var out []*Definition
	for _, d := range ds.Objects {
		if d.Type == objType && d.Register() {
			out = append(out, d)
		}
	}
	return out
}

// document is the YAML layout: a map from object type to a list of
// attribute maps, plus optional includes relative to the file.
//
//	include: [contacts.yaml]
//	host:
//	  - host_name: web01
//	    use: generic-host
//	    _SNMP_COMMUNITY: public
type document struct {
	Include []string                       `yaml:"include"`
	Objects map[string][]map[string]string `yaml:",inline"`
}

// LoadObjects reads an objects document, or every .yaml/.yml file below a
// directory, and resolves template inheritance.
func LoadObjects(path string) (*Definitions, error) {
	ds := NewDefinitions()
	if err := ds.load(path, map[string]bool{}); err != nil {
		return nil, err
	}
	if err := ResolveTemplates(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

// ParseObjects parses a single document held in memory; includes are not
// followed. Templates are resolved.
func ParseObjects(data []byte, source string) (*Definitions, error) {
	ds := NewDefinitions()
	if _, err := ds.parse(data, source); err != nil {
		return nil, err
	}
	if err := ResolveTemplates(ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *Definitions) load(path string, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", path)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	info, err := os.Stat(abs)
	if err != nil {
		return errors.Wrapf(err, "cannot open config %s", path)
	}
	if info.IsDir() {
		return ds.loadDir(abs, seen)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return errors.Wrapf(err, "cannot read config file %s", path)
	}
	includes, err := ds.parse(data, path)
	if err != nil {
		return err
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		if err := ds.load(inc, seen); err != nil {
			return err
		}
	}
	return nil
}

func (ds *Definitions) loadDir(dir string, seen map[string]bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "cannot read config dir %s", dir)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		if entry.IsDir() || strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			if err := ds.load(full, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ds *Definitions) parse(data []byte, source string) ([]string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", source)
	}

	// Map iteration order is random; keep the output stable.
	types := make([]string, 0, len(doc.Objects))
	for t := range doc.Objects {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		for i, raw := range doc.Objects[t] {
			def := &Definition{
				Type:       strings.ToLower(t),
				Attrs:      make(map[string]string, len(raw)),
				CustomVars: make(map[string]string),
				Source:     source + "#" + t + "[" + strconv.Itoa(i) + "]",
			}
			for k, v := range raw {
				if strings.HasPrefix(k, "_") {
					def.CustomVars[strings.ToUpper(k[1:])] = v
					continue
				}
				def.Attrs[normalizeAlias(def.Type, strings.ToLower(k))] = strings.TrimSpace(v)
			}
			if err := ds.Add(def); err != nil {
				return nil, err
			}
		}
	}
	return doc.Include, nil
}

// normalizeAlias maps attribute aliases to their canonical form.
func normalizeAlias(objType, key string) string {
	switch objType {
	case TypeService:
		if key == "description" {
			return "service_description"
		}
	case TypeContact:
		if key == "contact_groups" {
			return "contactgroups"
		}
	case TypeHostDependency:
		switch key {
		case "host", "master_host", "master_host_name":
			return "host_name"
		case "dependent_host":
			return "dependent_host_name"
		case "execution_failure_criteria":
			return "execution_failure_options"
		case "notification_failure_criteria":
			return "notification_failure_options"
		}
	case TypeServiceDependency:
		switch key {
		case "host", "master_host", "master_host_name":
			return "host_name"
		case "description", "master_description", "master_service_description":
			return "service_description"
		case "dependent_host":
			return "dependent_host_name"
		case "dependent_description":
			return "dependent_service_description"
		case "execution_failure_criteria":
			return "execution_failure_options"
		case "notification_failure_criteria":
			return "notification_failure_options"
		}
	case TypeHostEscalation:
		if key == "host" {
			return "host_name"
		}
	case TypeServiceEscalation:
		switch key {
		case "host":
			return "host_name"
		case "description":
			return "service_description"
		}
	}
	return key
}
