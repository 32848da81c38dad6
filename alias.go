package mash

import (
	"fmt"
	"sort"
)

// SetAlias defines or replaces an alias.
func (sh *Shell) SetAlias(name, body string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.Aliases[name] = body
}

// RemoveAlias deletes an alias, if present.
func (sh *Shell) RemoveAlias(name string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.Aliases, name)
}

// ListAliases returns every alias formatted as NAME='body', sorted by name,
// for the bare `alias` built-in.
func (sh *Shell) ListAliases() []string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	names := make([]string, 0, len(sh.Aliases))
	for name := range sh.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s='%s'", name, sh.Aliases[name]))
	}
	return out
}
