package db

import (
	"context"

	"coworkgate/internal/types"
)

// NotificationRepository writes the notifications table.
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository creates a NotificationRepository over db.
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts n. The row is never read back by coworkgate.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications (id, student_id, type, message, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID,
		n.StudentID,
		n.Type,
		n.Message,
		n.Read,
		n.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}
