// Package queue provides SQS message producers for reconcile replays and
// student notification events.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"coworkgate/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// ReplayMessage asks the reconcile worker to re-run the webhook path for
// one gateway payment.
type ReplayMessage struct {
	ProviderPaymentID types.ProviderID      `json:"providerPaymentId"`
	Source            types.ReconcileSource `json:"source"`
	Reason            string                `json:"reason,omitempty"`
	TraceID           string                `json:"traceId"`
	EnqueuedAt        time.Time             `json:"enqueuedAt"`
}

// NotificationEvent mirrors a persisted notification for downstream
// delivery (email, push).
type NotificationEvent struct {
	NotificationID string                 `json:"notificationId"`
	StudentID      string                 `json:"studentId"`
	Type           types.NotificationType `json:"type"`
	Message        string                 `json:"message"`
	CreatedAt      time.Time              `json:"createdAt"`
}

// Publisher serializes messages to JSON and sends them to one queue.
type Publisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewPublisher creates a Publisher for queueURL.
func NewPublisher(client SQSSender, queueURL string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, queueURL: queueURL, logger: logger}
}

// EnqueueReplay sends a ReplayMessage. TraceID and EnqueuedAt are filled
// when empty.
func (p *Publisher) EnqueueReplay(ctx context.Context, msg ReplayMessage) error {
	if msg.ProviderPaymentID.IsZero() {
		return fmt.Errorf("queue: replay message without provider payment id")
	}
	msg.ProviderPaymentID = msg.ProviderPaymentID.Canonical()
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	if msg.Source == "" {
		msg.Source = types.SourceReplay
	}
	return p.send(ctx, msg, "replay", map[string]string{
		"provider_payment_id": msg.ProviderPaymentID.String(),
		"reason":              msg.Reason,
	})
}

// PublishNotification sends a NotificationEvent.
func (p *Publisher) PublishNotification(ctx context.Context, evt NotificationEvent) error {
	return p.send(ctx, evt, "notification", map[string]string{
		"type": string(evt.Type),
	})
}

func (p *Publisher) send(ctx context.Context, payload any, kind string, attrs map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal %s message: %w", kind, err)
	}

	msgAttrs := map[string]sqsTypes.MessageAttributeValue{
		"kind": {
			DataType:    aws.String("String"),
			StringValue: aws.String(kind),
		},
	}
	for k, v := range attrs {
		if v == "" {
			continue
		}
		msgAttrs[k] = sqsTypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: msgAttrs,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send %s message to %s: %w", kind, p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "queue message sent",
		"queue_url", p.queueURL,
		"kind", kind,
	)
	return nil
}

// DecodeReplay parses an SQS body produced by EnqueueReplay. A bare
// {"providerPaymentId": ...} body is accepted.
func DecodeReplay(body string) (ReplayMessage, error) {
	var msg ReplayMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return ReplayMessage{}, fmt.Errorf("queue: invalid replay message: %w", err)
	}
	if msg.ProviderPaymentID.IsZero() {
		return ReplayMessage{}, fmt.Errorf("queue: replay message without provider payment id")
	}
	if msg.Source == "" {
		msg.Source = types.SourceReplay
	}
	return msg, nil
}
