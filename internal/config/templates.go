package config

import (
	"strings"

	"github.com/pkg/errors"
)

// ResolveTemplates processes the "use" attribute on every definition,
// applying left-to-right template inheritance. A child value starting
// with "+" is appended to the inherited one.
func ResolveTemplates(ds *Definitions) error {
	for _, def := range ds.Objects {
		if err := resolveDefinition(ds, def, nil); err != nil {
			return err
		}
	}
	for _, def := range ds.Objects {
		for key, val := range def.Attrs {
			if strings.HasPrefix(val, "+") {
				def.Attrs[key] = val[1:]
			}
		}
	}
	return nil
}

func resolveDefinition(ds *Definitions, def *Definition, chain []*Definition) error {
	if def.resolved {
		return nil
	}
	for _, c := range chain {
		if c == def {
			return errors.Errorf("%s: circular template reference through '%s'", def.Source, def.Name())
		}
	}

	use, ok := def.Attrs["use"]
	if !ok {
		def.resolved = true
		return nil
	}
	chain = append(chain, def)

	for _, name := range SplitList(use) {
		tmpl := ds.Template(def.Type, name)
		if tmpl == nil {
			return errors.Errorf("%s: template '%s' not found for type '%s'", def.Source, name, def.Type)
		}
		if err := resolveDefinition(ds, tmpl, chain); err != nil {
			return err
		}
		for key, val := range tmpl.Attrs {
			if key == "name" || key == "use" || key == "register" {
				continue
			}
			own, has := def.Attrs[key]
			if !has {
				def.Attrs[key] = val
			} else if strings.HasPrefix(own, "+") {
				def.Attrs[key] = strings.TrimPrefix(val, "+") + "," + own[1:]
			}
		}
		for key, val := range tmpl.CustomVars {
			if _, exists := def.CustomVars[key]; !exists {
				def.CustomVars[key] = val
			}
		}
	}
	def.resolved = true
	return nil
}

// SplitList splits a comma separated attribute value, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
