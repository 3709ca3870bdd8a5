package dispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/mattjoyce/courier/internal/message"
)

// Handler is invoked with each dispatched message of its registered type.
// Workers bind method values here, so the handler closes over its owner.
type Handler func(ctx context.Context, msg message.Message) error

// Registry maps message types to ordered handler lists. Build it fully at
// worker construction, then Freeze it before the first drain; a frozen
// registry is immutable and safe for concurrent lookup.
type Registry struct {
	handlers map[message.Type][]Handler
	frozen   bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[message.Type][]Handler)}
}

// On appends fn to the handler list for t and returns the registry for
// chaining. Multiple handlers for one type are legal and run in
// registration order. On panics after Freeze: late registration is a
// programmer error, not a runtime condition.
func (r *Registry) On(t message.Type, fn Handler) *Registry {
	if r.frozen {
		panic(fmt.Sprintf("dispatch: registration of %q after Freeze", t))
	}
	if t == "" {
		panic("dispatch: registration with empty message type")
	}
	if fn == nil {
		panic(fmt.Sprintf("dispatch: nil handler registered for %q", t))
	}
	r.handlers[t] = append(r.handlers[t], fn)
	return r
}

// Freeze marks the registry complete. A registry with zero handlers is
// legal; dispatch against it is a no-op drain.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen }

// Handlers returns the ordered handler list for t, possibly empty.
func (r *Registry) Handlers(t message.Type) []Handler {
	return r.handlers[t]
}

// Types returns the registered message types, sorted for stable output.
func (r *Registry) Types() []message.Type {
	out := make([]message.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
