package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"coworkgate/internal/membership"
	"coworkgate/internal/queue"
	"coworkgate/internal/telemetry"
	"coworkgate/internal/types"
)

// PaymentSyncer re-runs the webhook reconciliation path for one payment.
type PaymentSyncer interface {
	Sync(ctx context.Context, id types.ProviderID, source types.ReconcileSource) (*membership.Result, error)
}

// Handler holds the dependencies for the reconcile worker Lambda handler.
type Handler struct {
	syncer  PaymentSyncer
	metrics telemetry.Collector
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(syncer PaymentSyncer, metrics telemetry.Collector, logger *slog.Logger) *Handler {
	if metrics == nil {
		metrics = telemetry.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{syncer: syncer, metrics: metrics, logger: logger}
}

// Handle processes an SQS batch. Messages are independent; only those that
// failed transiently are returned in batchItemFailures so SQS retries just
// those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "replay failed, will retry",
				"message_id", record.MessageId,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	// The execution environment may freeze before the next flush tick.
	if err := telemetry.Flush(ctx, h.metrics); err != nil {
		h.logger.WarnContext(ctx, "metric flush failed", "error", err)
	}
	return response, nil
}

// processMessage returns an error only for failures worth redelivering.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	msg, err := queue.DecodeReplay(record.Body)
	if err != nil {
		// Permanent parse failure: ACK so it does not cycle until the DLQ.
		h.logger.ErrorContext(ctx, "dropping malformed replay message",
			"message_id", record.MessageId,
			"error", err,
		)
		h.metrics.RecordReconcile(ctx, string(types.SourceReplay), types.OutcomeIgnored)
		return nil
	}

	logger := h.logger.With(
		"provider_payment_id", msg.ProviderPaymentID.String(),
		"trace_id", msg.TraceID,
		"reason", msg.Reason,
		"receive_count", receiveCount(record),
	)
	ctx = types.WithLogger(types.WithRequestID(ctx, msg.TraceID), logger)

	if !msg.EnqueuedAt.IsZero() {
		logger.InfoContext(ctx, "processing replay", "queue_lag", time.Since(msg.EnqueuedAt).String())
	}

	res, err := h.syncer.Sync(ctx, msg.ProviderPaymentID, types.SourceReplay)
	switch {
	case err == nil:
		logger.InfoContext(ctx, "replay reconciled", "outcome", res.Outcome, "applied", res.Applied)
		return nil
	case types.IsNotFound(err), types.IsValidation(err):
		logger.WarnContext(ctx, "replay dropped", "error", err)
		return nil
	default:
		return err
	}
}

func receiveCount(record events.SQSMessage) int {
	n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"])
	if err != nil {
		return 0
	}
	return n
}
