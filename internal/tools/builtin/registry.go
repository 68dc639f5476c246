// Package builtin implements the catalog tools. The API mounts each handler
// at the tool's route; the handlers only ever see an authenticated caller.
package builtin

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/wagroups/wagroups/internal/automation"
	"github.com/wagroups/wagroups/internal/core"
	"github.com/wagroups/wagroups/internal/store"
	"github.com/wagroups/wagroups/internal/whatsapp"
)

// HandlerFunc runs one tool for caller. The returned value becomes the
// envelope's data.
type HandlerFunc func(ctx context.Context, caller core.Caller, args json.RawMessage) (any, error)

// Deps are the services tools act on.
type Deps struct {
	DB         *store.DB
	WhatsApp   *whatsapp.Service
	Automation *automation.Engine
}

// Registry holds the tool handlers by name.
type Registry struct {
	handlers map[string]HandlerFunc
}

// New wires every handler to d.
func New(d Deps) *Registry {
	r := &Registry{handlers: map[string]HandlerFunc{}}
	registerInstanceTools(r, d)
	registerGroupTools(r, d)
	registerAutomationTools(r, d)
	registerScheduleTools(r, d)
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(name string, h HandlerFunc) {
	r.handlers[name] = h
}

// Handler returns the handler for name.
func (r *Registry) Handler(name string) (HandlerFunc, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names lists registered tools, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
