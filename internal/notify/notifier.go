// Package notify writes student-facing notifications. Delivery is
// best-effort: no method returns an error, failures are logged.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"coworkgate/internal/queue"
	"coworkgate/internal/types"
)

// EventPublisher fans a notification out to downstream delivery.
type EventPublisher interface {
	PublishNotification(ctx context.Context, evt queue.NotificationEvent) error
}

// Notifier persists notifications and optionally publishes them.
type Notifier struct {
	repo      types.NotificationRepository
	publisher EventPublisher
	clock     types.Clock
	logger    *slog.Logger
}

// NewNotifier creates a Notifier. publisher may be nil.
func NewNotifier(repo types.NotificationRepository, publisher EventPublisher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{repo: repo, publisher: publisher, clock: time.Now, logger: logger}
}

// WithClock overrides the time source.
func (n *Notifier) WithClock(clock types.Clock) *Notifier {
	n.clock = clock
	return n
}

// PlanActivated notifies the student that planName is now active until
// validUntil.
func (n *Notifier) PlanActivated(ctx context.Context, studentID, planName string, validUntil time.Time) {
	msg := fmt.Sprintf("Tu plan %s fue activado. Vigente hasta el %s.", planName, validUntil.Format("02/01/2006 15:04"))
	n.send(ctx, studentID, types.NotificationPlanActivated, msg)
}

// PaymentFailed notifies the student that the payment for planName was
// not approved.
func (n *Notifier) PaymentFailed(ctx context.Context, studentID, planName string, status types.GatewayStatus) {
	msg := fmt.Sprintf("El pago del plan %s no fue aprobado (%s).", planName, status)
	n.send(ctx, studentID, types.NotificationPaymentFailed, msg)
}

func (n *Notifier) send(ctx context.Context, studentID string, kind types.NotificationType, message string) {
	note := &types.Notification{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Type:      kind,
		Message:   message,
		CreatedAt: n.clock().UTC(),
	}

	logger := types.LoggerFromContext(ctx, n.logger)
	if err := n.repo.Create(ctx, note); err != nil {
		logger.WarnContext(ctx, "failed to write notification",
			"error", err,
			"student_id", studentID,
			"type", string(kind),
		)
		return
	}

	if n.publisher == nil {
		return
	}
	err := n.publisher.PublishNotification(ctx, queue.NotificationEvent{
		NotificationID: note.ID,
		StudentID:      note.StudentID,
		Type:           note.Type,
		Message:        note.Message,
		CreatedAt:      note.CreatedAt,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to publish notification event",
			"error", err,
			"notification_id", note.ID,
		)
	}
}
