package membership

import (
	"time"

	"coworkgate/internal/types"
)

// EffectiveStatus returns the status as observed at now. An active
// membership whose validity window has ended reads as expired.
func EffectiveStatus(m types.Membership, now time.Time) types.MembershipStatus {
	if m.Status == types.MembershipActive && m.ValidUntil != nil && now.After(*m.ValidUntil) {
		return types.MembershipExpired
	}
	return m.Status
}

// statusClass groups gateway statuses by the transition they drive.
type statusClass int

const (
	classOther statusClass = iota
	classApproved
	classFailed
	classPending
)

func classify(s types.GatewayStatus) statusClass {
	switch s {
	case types.GatewayApproved:
		return classApproved
	case types.GatewayRejected, types.GatewayCancelled:
		return classFailed
	case types.GatewayPending, types.GatewayInProcess:
		return classPending
	default:
		return classOther
	}
}

// localStatus maps a failure gateway status to the payment status written.
func localStatus(s types.GatewayStatus) types.PaymentStatus {
	if s == types.GatewayCancelled {
		return types.PaymentCancelled
	}
	return types.PaymentRejected
}
