package pins

import (
	"sync"

	"hostmcu-go/errcode"
)

// Backend supplies concrete handles for pin numbers. The host simulation
// in sim.go is the default backend; tests may substitute their own.
type Backend interface {
	Handle(n int) (Handle, bool)
}

// Registry hands out pin handles and enforces single ownership.
type Registry struct {
	mu      sync.Mutex
	backend Backend
	owners  map[int]string
	funcs   map[int]Func
}

func NewRegistry(b Backend) *Registry {
	return &Registry{
		backend: b,
		owners:  map[int]string{},
		funcs:   map[int]Func{},
	}
}

// Claim resolves name and claims the pin for owner.
func (r *Registry) Claim(owner, name string, fn Func) (Handle, error) {
	n, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return r.ClaimNumber(owner, n, fn)
}

// ClaimNumber claims pin n for owner. A pin already claimed by a
// different owner fails with PinInUse; re-claiming by the same owner
// returns the same handle (idempotent startup is cheap to allow).
func (r *Registry) ClaimNumber(owner string, n int, fn Func) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, claimed := r.owners[n]; claimed && prev != owner {
		return nil, &errcode.E{C: errcode.PinInUse, Op: "pins.Claim", Msg: prev}
	}
	h, ok := r.backend.Handle(n)
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownPin, Op: "pins.Claim"}
	}
	r.owners[n] = owner
	r.funcs[n] = fn
	return h, nil
}

// Release frees a pin claimed by owner. Releasing an unclaimed pin or a
// pin owned by someone else is a no-op.
func (r *Registry) Release(owner string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[n] == owner {
		delete(r.owners, n)
		delete(r.funcs, n)
	}
}

// Owner reports the current claimant of a pin, if any.
func (r *Registry) Owner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[n]
	return o, ok
}
