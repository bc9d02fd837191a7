package types

import "time"

// Membership is a student's current access-rights record.
type Membership struct {
	PlanName      string           `json:"nombre"`
	Status        MembershipStatus `json:"estado"`
	ValidFrom     *time.Time       `json:"fechaDesde,omitempty"`
	ValidUntil    *time.Time       `json:"fechaHasta,omitempty"`
	AmountPaid    float64          `json:"montoPagado"`
	PaymentMethod string           `json:"medioPago,omitempty"`
}

// HasWindow reports whether both ends of the validity window are set.
func (m Membership) HasWindow() bool {
	return m.ValidFrom != nil && m.ValidUntil != nil
}

// Student is a coworking member.
type Student struct {
	ID            string     `json:"id"`
	FullName      string     `json:"fullName"`
	Email         string     `json:"email"`
	AccessCode    string     `json:"accessCode"`
	IsCheckedIn   bool       `json:"isCheckedIn"`
	LastCheckInAt *time.Time `json:"lastCheckInTimestamp,omitempty"`
	Active        bool       `json:"activo"`
	Membership    Membership `json:"membership"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Payment is the local record of a gateway payment.
type Payment struct {
	ID         string        `json:"id"`
	StudentID  string        `json:"studentId"`
	ProviderID ProviderID    `json:"mercadoPagoId"`
	Amount     float64       `json:"amount"`
	Method     string        `json:"method"`
	Date       time.Time     `json:"date"`
	Settled    bool          `json:"facturado"`
	Plan       string        `json:"plan"`
	Status     PaymentStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Session is one check-in to check-out interval.
type Session struct {
	ID              string     `json:"id"`
	StudentID       string     `json:"studentId"`
	CheckInAt       time.Time  `json:"checkInTimestamp"`
	CheckOutAt      *time.Time `json:"checkOutTimestamp"`
	DurationMinutes *int       `json:"durationMinutes"`
}

// IsOpen reports whether the session has not been checked out.
func (s Session) IsOpen() bool {
	return s.CheckOutAt == nil
}

// Plan is a purchasable membership plan.
// Type is optional; when empty the plan is classified by name and price.
type Plan struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	StartHour string   `json:"startHour"`
	EndHour   string   `json:"endHour"`
	Days      []string `json:"days"`
	Type      PlanType `json:"planType,omitempty"`
}

// Notification is a write-only student-facing message.
type Notification struct {
	ID        string           `json:"id"`
	StudentID string           `json:"studentId"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// WebhookEvent is the archived raw body of a received gateway notification.
type WebhookEvent struct {
	ID                string
	Provider          string
	Topic             string
	ProviderPaymentID ProviderID
	Payload           []byte
	ReceivedAt        time.Time
}
