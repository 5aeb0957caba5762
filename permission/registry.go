package permission

import (
	"errors"
	"sort"
	"sync"
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[Permission]int
	bitToName map[int]Permission
	frozen    bool
}

// NewRegistry creates an empty permission [Registry].
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[Permission]int),
		bitToName: make(map[int]Permission),
	}
}

// DefaultRegistry returns a frozen registry holding every known permission
// in sorted order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range AllPermissions() {
		if _, err := r.Register(p); err != nil {
			panic("permission: default registry: " + err.Error())
		}
	}
	r.Freeze()
	return r
}

// Register assigns the next available bit to the named permission.
// Returns the assigned bit index. Must be called before [Registry.Freeze].
func (r *Registry) Register(p Permission) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	if p == "" {
		return -1, errors.New("permission name cannot be empty")
	}
	if _, exists := r.nameToBit[p]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= 64 {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[p] = nextBit
	r.bitToName[nextBit] = p
	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(p Permission) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[p]
	return bit, ok
}

// Name returns the permission for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (Permission, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}

// Mask builds a mask from permissions. Unregistered permissions are reported.
func (r *Registry) Mask(perms ...Permission) (Mask64, error) {
	var m Mask64
	for _, p := range perms {
		bit, ok := r.Bit(p)
		if !ok {
			return 0, ErrUnknownPermission
		}
		m.Set(bit)
	}
	return m, nil
}

// Expand lists the permissions set in m, sorted by name.
func (r *Registry) Expand(m Mask64) []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Permission, 0, m.Count())
	for bit, name := range r.bitToName {
		if m.Has(bit) {
			out = append(out, name)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
