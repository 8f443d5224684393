package threads

import (
	"strings"
	"sync"
)

// Allowlist is the set of conversation ids permitted to use the bot.
// It can be replaced at runtime, e.g. when the config file is reloaded.
type Allowlist struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewAllowlist builds an allow-list from ids. Blank entries are ignored.
func NewAllowlist(ids []string) *Allowlist {
	a := &Allowlist{}
	a.Replace(ids)
	return a
}

// Allowed reports whether id is on the list.
func (a *Allowlist) Allowed(id string) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ids[strings.TrimSpace(id)]
	return ok
}

// Replace swaps the full set of ids.
func (a *Allowlist) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			next[id] = struct{}{}
		}
	}
	a.mu.Lock()
	a.ids = next
	a.mu.Unlock()
}

// Len returns the number of allowed ids.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.ids)
}
