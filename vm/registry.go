package vm

import (
	"fmt"
	"sync"

	"github.com/tolelom/tolbattle/crypto"
)

// Handler is the entry point every program must implement. data is the raw
// instruction; ctx.Accounts holds private copies of the listed accounts whose
// Data the handler rewrites in place.
type Handler func(ctx *Context, data []byte) error

// Registry maps program identities to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[crypto.Pubkey]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[crypto.Pubkey]Handler)}
}

// Register associates programID with h. Panics on duplicate registration.
func (r *Registry) Register(programID crypto.Pubkey, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[programID]; exists {
		panic(fmt.Sprintf("vm: program already registered: %s", programID))
	}
	r.handlers[programID] = h
}

// Lookup returns the handler for programID.
func (r *Registry) Lookup(programID crypto.Pubkey) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[programID]
	return h, ok
}

// Execute dispatches data to the program registered under ctx.ProgramID.
func (r *Registry) Execute(ctx *Context, data []byte) error {
	h, ok := r.Lookup(ctx.ProgramID)
	if !ok {
		return fmt.Errorf("vm: no program registered for %s", ctx.ProgramID)
	}
	return h(ctx, data)
}

// globalRegistry is the package-level singleton that programs register into.
var globalRegistry = NewRegistry()

// Register adds a program to the global registry.
// Program packages call this from init() to self-register.
func Register(programID crypto.Pubkey, h Handler) {
	globalRegistry.Register(programID, h)
}
