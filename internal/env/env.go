// Package env composes the environment handed to a launched server.
package env

import (
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Env is a base environment that per-server overrides are layered onto.
type Env struct {
	base Var
}

// FromOS snapshots the current process environment as the base.
func FromOS() *Env {
	return FromList(os.Environ())
}

// FromList builds a base from "K=V" entries. Entries without '=' or with an
// empty key are skipped; a later duplicate wins.
func FromList(kvs []string) *Env {
	base := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := split(kv)
		if !ok {
			continue
		}
		base[k] = v
	}
	return &Env{base: base}
}

// Merge returns the base overridden by overrides as a sorted "K=V" list.
// Values are passed through untouched; no expansion is performed.
func (e *Env) Merge(overrides Var) []string {
	m := make(Var, len(e.base)+len(overrides))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range overrides {
		if k == "" || strings.ContainsRune(k, '=') {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the base value of k.
func (e *Env) Lookup(k string) (string, bool) {
	v, ok := e.base[k]
	return v, ok
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}
