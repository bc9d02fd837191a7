package telemetry

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"coworkgate/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// maxBufferedDatums is the batch size that triggers an immediate
// PutMetricData.
const maxBufferedDatums = 20

// flushTimeout bounds the final flush on Close.
const flushTimeout = 5 * time.Second

// CloudWatch buffers metric data and sends it in PutMetricData batches. A
// batch goes out when it fills, on every tick of StartFlusher, on Flush and
// on Close. Used by the Lambda worker, where a scrape endpoint is not
// available.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger

	mu  sync.Mutex
	buf []cwtypes.MetricDatum

	stop      chan struct{}
	done      chan struct{}
	started   bool
	closeOnce sync.Once
}

// NewCloudWatch creates a CloudWatch collector. An empty namespace falls
// back to types.MetricNamespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		logger:    logger,
		buf:       make([]cwtypes.MetricDatum, 0, maxBufferedDatums),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// StartFlusher flushes the buffer every interval until Close. Call it at
// most once.
func (c *CloudWatch) StartFlusher(interval time.Duration) {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				_ = c.Flush(context.Background())
			}
		}
	}()
}

// Close stops the flusher, if any, and sends whatever is still buffered.
func (c *CloudWatch) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.done
		}
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		err = c.Flush(ctx)
	})
	return err
}

// Flush sends every buffered datum. Failures are logged and the first one
// is returned; failed data is dropped.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.buf
	c.buf = make([]cwtypes.MetricDatum, 0, maxBufferedDatums)
	c.mu.Unlock()

	var first error
	for len(pending) > 0 {
		n := min(len(pending), maxBufferedDatums)
		if err := c.send(ctx, pending[:n]); err != nil && first == nil {
			first = err
		}
		pending = pending[n:]
	}
	return first
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

// put buffers data, stamping each datum with the event time, and sends the
// batch once it is full.
func (c *CloudWatch) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	now := time.Now()
	c.mu.Lock()
	for i := range data {
		data[i].Timestamp = aws.Time(now)
	}
	c.buf = append(c.buf, data...)
	var full []cwtypes.MetricDatum
	if len(c.buf) >= maxBufferedDatums {
		full = c.buf
		c.buf = make([]cwtypes.MetricDatum, 0, maxBufferedDatums)
	}
	c.mu.Unlock()

	for len(full) > 0 {
		n := min(len(full), maxBufferedDatums)
		_ = c.send(ctx, full[:n])
		full = full[n:]
	}
}

func (c *CloudWatch) send(ctx context.Context, data []cwtypes.MetricDatum) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(c.namespace),
		MetricData: data,
	}
	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.WarnContext(ctx, "failed to put metric data",
			"error", err,
			"datums", len(data),
			"first_metric", aws.ToString(data[0].MetricName),
		)
		return err
	}
	return nil
}

func (c *CloudWatch) RecordRequest(ctx context.Context, method, endpoint string, status int, duration time.Duration) {
	c.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequests),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				dim(types.DimMethod, method),
				dim(types.DimEndpoint, endpoint),
				dim(types.DimStatus, strconv.Itoa(status)),
			},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				dim(types.DimMethod, method),
				dim(types.DimEndpoint, endpoint),
			},
		},
	)
}

func (c *CloudWatch) RecordReconcile(ctx context.Context, source, outcome string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricReconciliations),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimSource, source),
			dim(types.DimOutcome, outcome),
		},
	})
}

func (c *CloudWatch) RecordAccess(ctx context.Context, action, result string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricAccessEvents),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimAction, action),
			dim(types.DimResult, result),
		},
	})
}

func (c *CloudWatch) RecordGatewayFailure(ctx context.Context, operation string) {
	c.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricGatewayFailures),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			dim(types.DimAction, operation),
		},
	})
}

var (
	_ Collector = (*CloudWatch)(nil)
	_ Flusher   = (*CloudWatch)(nil)
)
