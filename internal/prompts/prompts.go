package prompts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind selects the per-agent template set
type Kind string

const (
	KindTrading   Kind = "trading"
	KindMarketing Kind = "marketing"
)

// ConfigError reports template validation failure at construction
type ConfigError struct {
	Template string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("prompt config error in %q: %s", e.Template, e.Reason)
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// Registry owns a validated template set for one agent kind. Custom templates
// override defaults key by key; every template's placeholder set must exactly
// match the default's.
type Registry struct {
	kind      Kind
	templates map[string]string
}

// NewRegistry builds a registry from a possibly-partial custom template map.
// Missing keys are filled from the kind's defaults.
func NewRegistry(kind Kind, custom map[string]string) (*Registry, error) {
	defaults, err := defaultsFor(kind)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]string, len(defaults))
	for name, tmpl := range defaults {
		merged[name] = tmpl
	}
	for name, tmpl := range custom {
		if _, ok := defaults[name]; !ok {
			return nil, &ConfigError{Template: name, Reason: "unknown template name"}
		}
		merged[name] = tmpl
	}

	for name, tmpl := range merged {
		required := Placeholders(defaults[name])
		got := Placeholders(tmpl)
		if missing := diff(required, got); len(missing) > 0 {
			return nil, &ConfigError{Template: name, Reason: fmt.Sprintf("missing placeholders: %s", strings.Join(missing, ", "))}
		}
		if extra := diff(got, required); len(extra) > 0 {
			return nil, &ConfigError{Template: name, Reason: fmt.Sprintf("unexpected placeholders: %s", strings.Join(extra, ", "))}
		}
	}

	return &Registry{kind: kind, templates: merged}, nil
}

// Kind returns the registry's agent kind
func (r *Registry) Kind() Kind {
	return r.kind
}

// Names returns the sorted template name set
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render substitutes every placeholder in the named template with the bound
// value. Unbound placeholders and unknown template names are errors.
func (r *Registry) Render(name string, vars map[string]string) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := token[1 : len(token)-1]
		val, bound := vars[key]
		if !bound {
			missing = append(missing, key)
			return token
		}
		return val
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("template %s: unbound placeholders: %s", name, strings.Join(missing, ", "))
	}

	return out, nil
}

// Placeholders extracts the unique {name} tokens from a template, sorted
func Placeholders(tmpl string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func defaultsFor(kind Kind) (map[string]string, error) {
	switch kind {
	case KindTrading:
		return defaultTradingTemplates, nil
	case KindMarketing:
		return defaultMarketingTemplates, nil
	default:
		return nil, &ConfigError{Template: string(kind), Reason: "unknown agent kind"}
	}
}

func diff(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range a {
		if _, ok := set[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
