package registry

import (
	"sort"
	"sync"

	"github.com/wagroups/wagroups/internal/config"
	"github.com/wagroups/wagroups/internal/core"
)

// ClientFactory builds a language model client from configuration.
type ClientFactory func(cfg config.LLMConfig) (core.LLMClient, error)

var (
	mu         sync.RWMutex
	LLMClients = make(map[string]ClientFactory)
)

// RegisterClient makes a provider available under name. Providers register
// themselves from init.
func RegisterClient(name string, f ClientFactory) {
	mu.Lock()
	defer mu.Unlock()
	LLMClients[name] = f
}

func GetClientFactory(name string) (ClientFactory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := LLMClients[name]
	return f, ok
}

// Providers lists registered provider names.
func Providers() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(LLMClients))
	for n := range LLMClients {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
