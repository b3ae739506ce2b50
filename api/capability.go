/*
capability.go - Capability checks for privileged operations

PURPOSE:
  Reversing a consumption and editing status definitions are
  manager-class operations. The ledger and the engine are role-agnostic
  on purpose; the capability gate lives here at the API boundary, where
  the actor's role is known.

ROLES:
  operator  consume, list, transition entities
  manager   everything an operator can, plus reversals and hold releases
  admin     everything, plus status administration

  An empty role gets operator capabilities, matching shop-floor
  terminals that send no role header.
*/
package api

// Capability names one privileged operation.
type Capability string

const (
	CapConsume            Capability = "consumption.create"
	CapReverseConsumption Capability = "consumption.reverse"
	CapTransitionStatus   Capability = "status.transition"
	CapReleaseHold        Capability = "quality_hold.release"
	CapManageStatuses     Capability = "statuses.manage"
)

// CapabilityChecker decides whether an actor may perform an operation.
type CapabilityChecker interface {
	Allowed(role, actorID string, cap Capability) bool
}

// RoleCapabilities grants capabilities by role name.
type RoleCapabilities map[string]map[Capability]bool

// DefaultCapabilities is the standard role table.
func DefaultCapabilities() RoleCapabilities {
	operator := map[Capability]bool{
		CapConsume:          true,
		CapTransitionStatus: true,
	}
	manager := map[Capability]bool{
		CapConsume:            true,
		CapTransitionStatus:   true,
		CapReverseConsumption: true,
		CapReleaseHold:        true,
	}
	admin := map[Capability]bool{
		CapConsume:            true,
		CapTransitionStatus:   true,
		CapReverseConsumption: true,
		CapReleaseHold:        true,
		CapManageStatuses:     true,
	}
	return RoleCapabilities{
		"":         operator,
		"operator": operator,
		"manager":  manager,
		"admin":    admin,
	}
}

func (rc RoleCapabilities) Allowed(role, actorID string, cap Capability) bool {
	grants, ok := rc[role]
	if !ok {
		// Unknown roles fall back to operator, never to nothing:
		// a typo'd role must not brick consumption on the floor.
		grants = rc[""]
	}
	return grants[cap]
}
