// Package identity enforces who may raise which lifecycle event, before
// any state is even loaded. Grounded on the teacher's closed-enum status
// types (internal/domain/entities/deposit_status.go) and on
// original_source/app/security/{roles,rbac}.py.
package identity

import "fmt"

// Role is a closed enumeration. Any string outside this set fails to
// parse into one, never silently degrades to a zero value.
type Role string

const (
	RoleOperator   Role = "OPERATOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAuditor    Role = "AUDITOR"
)

var validRoles = map[Role]bool{
	RoleOperator:   true,
	RoleSupervisor: true,
	RoleAuditor:    true,
}

// ParseRole parses a raw role string into a Role, or returns ErrInvalidRole.
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !validRoles[r] {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Event mirrors fsm.Event without importing it, to keep identity free of
// the FSM package's transition-table concerns — identity only needs to
// know event names for the authorization matrix.
type Event string

const (
	EventStartBatch      Event = "start_batch"
	EventRequestApproval Event = "request_approval"
	EventApproveStep     Event = "approve_step"
	EventProgressStep    Event = "progress_step"
	EventRejectBatch     Event = "reject_batch"

	// EventResolveViolation is not a batch transition (fsm.Next never
	// admits it) — it authorizes the one permitted mutation on a
	// Violation row, OPEN -> RESOLVED (spec.md §3).
	EventResolveViolation Event = "resolve_violation"
)

// permissionMatrix is the authorization table from spec.md §4.2: Operator
// drives the batch forward, Supervisor approves or kills it, Auditor never
// writes.
var permissionMatrix = map[Role]map[Event]bool{
	RoleOperator: {
		EventStartBatch:      true,
		EventProgressStep:    true,
		EventRequestApproval: true,
	},
	RoleSupervisor: {
		EventApproveStep:      true,
		EventRejectBatch:      true,
		EventResolveViolation: true,
	},
	RoleAuditor: {},
}

// Authorize enforces the (role, event) permission matrix. It is the very
// first check in the Lifecycle Engine, run before any batch state is
// loaded — a denial here produces no ledger writes at all (spec.md §7).
func Authorize(role Role, event Event) error {
	if !validRoles[role] {
		return ErrInvalidRole
	}
	allowed, ok := permissionMatrix[role]
	if !ok || !allowed[event] {
		return ErrUnauthorized
	}
	return nil
}

// DomainError is the small set of identity-layer errors, distinguished by
// Code so a caller (or an HTTP collaborator outside this module) can
// switch on it without string matching.
type DomainError struct {
	Code string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("identity: %s", e.Code)
}

var (
	ErrInvalidRole  = &DomainError{Code: "INVALID_ROLE"}
	ErrUnauthorized = &DomainError{Code: "UNAUTHORIZED"}
)
