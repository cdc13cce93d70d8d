// Package policy holds the pure authorization decisions for the 3-tier role
// hierarchy and hospital scoping. No I/O happens here; every resource handler
// calls into this package instead of re-deriving checks inline.
package policy

import "strings"

// Role is the closed set of privilege tiers.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Privilege levels. The ordering is total and monotonic; nothing below an
// explicit elevation check may construct a higher level from a lower one.
const (
	levelUser       = 1
	levelAdmin      = 50
	levelSuperAdmin = 100
)

// ParseRole normalizes a stored or transmitted role string. Unknown values
// collapse to RoleUser so a corrupted row can never grant privilege.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleSuperAdmin:
		return RoleSuperAdmin
	default:
		return RoleUser
	}
}

// Level maps a role to its numeric privilege level.
func Level(r Role) int {
	switch r {
	case RoleSuperAdmin:
		return levelSuperAdmin
	case RoleAdmin:
		return levelAdmin
	default:
		return levelUser
	}
}

// Actor is the authenticated party making a request, as seen by the policy.
type Actor struct {
	ID                 string
	Role               Role
	ManagedHospitalIDs []string
}

// Target carries the minimal fields of the record being acted upon.
type Target struct {
	ID         string
	Role       Role
	HospitalID string
	CreatedBy  string
}

// IsAdmin reports whether the actor holds admin privilege or above.
func (a Actor) IsAdmin() bool {
	return Level(a.Role) >= levelAdmin
}

// CanModifyRole decides whether actor may set target's role to newRole.
// Admins only ever shuffle plain users; they cannot mint or demote admins.
func CanModifyRole(actor Actor, target Target, newRole Role) bool {
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		return target.Role == RoleUser && newRole == RoleUser
	default:
		return false
	}
}

// CanDeleteEmployee decides whether actor may delete the target employee.
// Super-admins may delete anyone but themselves; admins only plain users.
func CanDeleteEmployee(actor Actor, target Target) bool {
	switch actor.Role {
	case RoleSuperAdmin:
		return actor.ID != target.ID
	case RoleAdmin:
		return target.Role == RoleUser
	default:
		return false
	}
}

// CanModifyProfile decides whether actor may edit the target's profile.
// Self-edit short-circuits before any role comparison.
func CanModifyProfile(actor Actor, target Target) bool {
	if actor.ID == target.ID {
		return true
	}
	switch actor.Role {
	case RoleSuperAdmin:
		return target.Role != RoleSuperAdmin
	case RoleAdmin:
		return target.Role == RoleUser
	default:
		return false
	}
}

// InScope decides whether the hospital is visible to the actor. An admin with
// an empty managed set sees nothing; that is fail-safe-empty, not an error.
func InScope(actor Actor, hospitalID string) bool {
	switch actor.Role {
	case RoleSuperAdmin:
		return true
	case RoleAdmin:
		for _, id := range actor.ManagedHospitalIDs {
			if id == hospitalID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// VisibleHospitals intersects a requested hospital filter with the actor's
// managed set. A super-admin keeps the filter as-is; an empty requested set
// means "everything the actor manages".
func VisibleHospitals(actor Actor, requested []string) []string {
	if actor.Role == RoleSuperAdmin {
		return requested
	}
	if len(requested) == 0 {
		return append([]string(nil), actor.ManagedHospitalIDs...)
	}
	var out []string
	for _, id := range requested {
		if InScope(actor, id) {
			out = append(out, id)
		}
	}
	if out == nil {
		// Requested hospitals were all out of scope; fall back to the managed
		// set rather than erroring so list queries stay fail-safe.
		out = append(out, actor.ManagedHospitalIDs...)
	}
	return out
}

// CanActOnOwned decides whether actor may mutate a resource it did not
// necessarily create. Creators and super-admins only; peer admins never.
func CanActOnOwned(actor Actor, target Target) bool {
	if actor.ID != "" && actor.ID == target.CreatedBy {
		return true
	}
	return actor.Role == RoleSuperAdmin
}
