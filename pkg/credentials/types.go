package credentials

import (
	"regexp"
	"strings"
)

// Source identifies where credential material was resolved from.
type Source string

const (
	// SourceEnvironment means the values came from process environment vars.
	SourceEnvironment Source = "environment"

	// SourceConfigFile means the values came from the provider config file.
	SourceConfigFile Source = "config-file"
)

// State tracks a credential through its lifecycle.
type State string

const (
	// StateAbsent means one or more constituent values are missing.
	StateAbsent State = "absent"

	// StatePresent means every constituent value is non-empty but the
	// provider has not confirmed it.
	StatePresent State = "present"

	// StateValidated means the provider accepted the credential.
	StateValidated State = "validated"

	// StateInvalid means the provider rejected the credential; its values
	// have been unset.
	StateInvalid State = "invalid"
)

// Credential is a named set of environment variables that must all be set
// for the credential to be usable. A single-variable credential is the
// one-element case.
type Credential struct {
	// Provider is the owning provider name, used in messages and logging.
	Provider string

	// Names are the constituent environment variable names, in order.
	Names []string

	// Source records where the values were resolved from.
	Source Source

	// State is the current lifecycle state.
	State State

	values []string
}

// Single returns a credential backed by one environment variable.
func Single(provider, name string) Credential {
	return Credential{Provider: provider, Names: []string{name}, State: StateAbsent}
}

// Multi returns a credential backed by several environment variables, all of
// which must be set for the credential to be Present.
func Multi(provider string, names ...string) Credential {
	return Credential{Provider: provider, Names: names, State: StateAbsent}
}

// IsMulti reports whether the credential spans more than one variable.
func (c Credential) IsMulti() bool {
	return len(c.Names) > 1
}

// Present reports whether every constituent value is non-empty.
func (c Credential) Present() bool {
	if len(c.values) != len(c.Names) || len(c.Names) == 0 {
		return false
	}
	for _, v := range c.values {
		if v == "" {
			return false
		}
	}
	return true
}

// Value returns the value for the given constituent name, or "" when the
// credential does not carry it.
func (c Credential) Value(name string) string {
	for i, n := range c.Names {
		if n == name && i < len(c.values) {
			return c.values[i]
		}
	}
	return ""
}

// Pairs returns name/value pairs for every constituent, in declaration
// order. Only meaningful when Present.
func (c Credential) Pairs() map[string]string {
	out := make(map[string]string, len(c.Names))
	for i, n := range c.Names {
		if i < len(c.values) {
			out[n] = c.values[i]
		}
	}
	return out
}

// setValues installs constituent values, enforcing the all-or-nothing
// invariant: if any value is empty the credential holds nothing.
func (c *Credential) setValues(values []string, source Source) {
	if len(values) != len(c.Names) {
		c.values = nil
		c.State = StateAbsent
		return
	}
	for _, v := range values {
		if v == "" {
			c.values = nil
			c.State = StateAbsent
			return
		}
	}
	c.values = values
	c.Source = source
	c.State = StatePresent
}

// nameRe is the env-var naming contract: leading capital, then capitals,
// digits, or underscores, at least four characters total.
var nameRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{3,}$`)

// ValidName reports whether name is a well-formed credential variable name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ParseAuthSpec interprets a provider's auth string. Multi-variable auth
// joins names with " + "; a string that is not a list of well-formed
// variable names (e.g. "none", "gcloud auth login") means the provider has
// no environment-variable credential and nil is returned.
func ParseAuthSpec(spec string) []string {
	parts := strings.Split(spec, " + ")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !ValidName(p) {
			return nil
		}
		names = append(names, p)
	}
	return names
}
