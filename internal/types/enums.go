package types

// MembershipStatus is the stored state of a student's membership.
// MembershipExpired is normally derived on read from the validity window.
type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipActive    MembershipStatus = "activa"
	MembershipCancelled MembershipStatus = "cancelada"
	MembershipExpired   MembershipStatus = "vencido"
)

// PaymentStatus is the local lifecycle state of a Payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentApproved  PaymentStatus = "approved"
	PaymentRejected  PaymentStatus = "rejected"
	PaymentCancelled PaymentStatus = "cancelled"
)

// IsTerminal reports whether the status can no longer change.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentApproved, PaymentRejected, PaymentCancelled:
		return true
	default:
		return false
	}
}

// GatewayStatus is a payment status as reported by Mercado Pago.
type GatewayStatus string

const (
	GatewayApproved   GatewayStatus = "approved"
	GatewayRejected   GatewayStatus = "rejected"
	GatewayCancelled  GatewayStatus = "cancelled"
	GatewayPending    GatewayStatus = "pending"
	GatewayInProcess  GatewayStatus = "in_process"
	GatewayAuthorized GatewayStatus = "authorized"
	GatewayRefunded   GatewayStatus = "refunded"
)

// PlanType is the billing semantics of a plan.
type PlanType string

const (
	PlanDaily   PlanType = "daily"
	PlanMonthly PlanType = "monthly"
)

// NotificationType identifies the student-facing notification kind.
type NotificationType string

const (
	NotificationPlanActivated NotificationType = "plan_activated"
	NotificationPaymentFailed NotificationType = "payment_failed"
)

// ReconcileSource identifies which ingress path triggered a reconciliation.
type ReconcileSource string

const (
	SourceWebhook      ReconcileSource = "webhook"
	SourceConfirmation ReconcileSource = "confirmation"
	SourceReplay       ReconcileSource = "replay"
)

// Payment method labels written by the reconciler.
const (
	MethodHostedCheckout = "Mercado Pago Hospedado"
	RejectedMethodSuffix = " (Rechazado)"
)
