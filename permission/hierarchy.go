package permission

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the inheritance table is not acyclic.
var ErrCycle = errors.New("permission: role inheritance cycle")

// DefaultInheritance lists each role's directly inherited roles.
var DefaultInheritance = map[Role][]Role{
	SuperAdmin:      {OrgAdmin},
	OrgAdmin:        {StandardUser},
	StandardUser:    {IntegrationUser},
	IntegrationUser: nil,
}

// DefaultGrants lists the permissions each role holds in its own right.
var DefaultGrants = map[Role][]Permission{
	IntegrationUser: {ReadData},
	StandardUser:    {WriteData, ManageTemplates},
	OrgAdmin:        {ConfigureIntegrations, ManageUsers},
	SuperAdmin:      nil,
}

// Hierarchy is the resolved role table: for every role, the set of roles it
// inherits (itself included) and the union of their permissions. It is
// computed once and read-only afterwards.
type Hierarchy struct {
	registry *Registry
	closure  map[Role][]Role
	masks    map[Role]Mask64
}

// NewHierarchy resolves inherits and grants into a Hierarchy. Every role
// named anywhere must appear as a key of inherits, and the graph must be
// acyclic.
func NewHierarchy(registry *Registry, inherits map[Role][]Role, grants map[Role][]Permission) (*Hierarchy, error) {
	if registry == nil {
		return nil, errors.New("permission: nil registry")
	}
	for role, parents := range inherits {
		for _, p := range parents {
			if _, ok := inherits[p]; !ok {
				return nil, fmt.Errorf("%w: %s inherits %s", ErrUnknownRole, role, p)
			}
		}
	}
	for role := range grants {
		if _, ok := inherits[role]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Role]int, len(inherits))
	closure := make(map[Role]map[Role]struct{}, len(inherits))

	var visit func(Role) error
	visit = func(r Role) error {
		switch state[r] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w at %s", ErrCycle, r)
		}
		state[r] = visiting
		set := map[Role]struct{}{r: {}}
		for _, p := range inherits[r] {
			if err := visit(p); err != nil {
				return err
			}
			for q := range closure[p] {
				set[q] = struct{}{}
			}
		}
		closure[r] = set
		state[r] = done
		return nil
	}

	h := &Hierarchy{
		registry: registry,
		closure:  make(map[Role][]Role, len(inherits)),
		masks:    make(map[Role]Mask64, len(inherits)),
	}
	for role := range inherits {
		if err := visit(role); err != nil {
			return nil, err
		}
	}
	for role, set := range closure {
		var mask Mask64
		roles := make([]Role, 0, len(set))
		for r := range set {
			roles = append(roles, r)
			own, err := registry.Mask(grants[r]...)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", r, err)
			}
			mask = mask.Union(own)
		}
		sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
		h.closure[role] = roles
		h.masks[role] = mask
	}
	return h, nil
}

// DefaultHierarchy resolves the built-in tables.
func DefaultHierarchy() *Hierarchy {
	h, err := NewHierarchy(DefaultRegistry(), DefaultInheritance, DefaultGrants)
	if err != nil {
		panic("permission: default hierarchy: " + err.Error())
	}
	return h
}

// Registry returns the registry the hierarchy's masks are built on.
func (h *Hierarchy) Registry() *Registry {
	return h.registry
}

// Inherited returns role and every role it inherits, sorted.
func (h *Hierarchy) Inherited(role Role) ([]Role, error) {
	roles, ok := h.closure[role]
	if !ok {
		return nil, ErrUnknownRole
	}
	return append([]Role(nil), roles...), nil
}

// Mask returns the effective permission mask of role.
func (h *Hierarchy) Mask(role Role) (Mask64, error) {
	m, ok := h.masks[role]
	if !ok {
		return 0, ErrUnknownRole
	}
	return m, nil
}

// Permissions returns the effective permissions of role, sorted.
func (h *Hierarchy) Permissions(role Role) ([]Permission, error) {
	m, err := h.Mask(role)
	if err != nil {
		return nil, err
	}
	return h.registry.Expand(m), nil
}
