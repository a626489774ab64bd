package env

import (
	"os"
	"sort"
	"strings"
)

// Env composes the environment handed to the managed process.
// The zero value is usable and starts from an empty base.
type Env struct {
	base map[string]string
	vars map[string]string
}

// New returns an Env whose base is the current OS environment when useOS is true.
func New(useOS bool) *Env {
	e := &Env{vars: make(map[string]string)}
	if useOS {
		e.base = parse(os.Environ())
	}
	return e
}

// Set adds or overrides a single variable on top of the base.
func (e *Env) Set(k, v string) {
	if k == "" {
		return
	}
	if e.vars == nil {
		e.vars = make(map[string]string)
	}
	e.vars[k] = v
}

// SetAll applies "KEY=VALUE" pairs in order; malformed entries are skipped.
func (e *Env) SetAll(kvs []string) {
	for k, v := range parse(kvs) {
		e.Set(k, v)
	}
}

// Merge returns base, then Set overrides, then extra ("KEY=VALUE") in that order of
// precedence, with ${VAR} references expanded against the merged set. Output is sorted by key.
func (e *Env) Merge(extra []string) []string {
	m := make(map[string]string, len(e.base)+len(e.vars)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for k, v := range parse(extra) {
		m[k] = v
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func parse(kvs []string) map[string]string {
	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

// expand performs one pass of ${VAR} substitution; unknown references are left as-is.
func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(k string) string {
		if v, ok := m[k]; ok {
			return v
		}
		return "${" + k + "}"
	})
}
