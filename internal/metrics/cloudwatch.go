package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/insurance-relay/internal/aws"
	"github.com/imrishuroy/insurance-relay/internal/relay"
)

// Metric names published per cycle.
const (
	MetricCycleOutcome  = "CycleOutcome"
	MetricCycleDuration = "CycleDuration"
	MetricSkippedTick   = "SkippedTick"
)

// CloudWatch publishes one datapoint set per cycle. Publishing is
// best-effort: failures are logged and dropped.
//
// Skipped ticks are only counted; they go out with the next cycle's
// datapoints so the scheduler's ticker never waits on the network.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	logger    *zap.Logger
	nowFunc   func() time.Time

	skipped atomic.Int64
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		timeout:   5 * time.Second,
		logger:    logger.Named("metrics"),
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) ObserveCycle(res relay.Result, elapsed time.Duration) {
	now := c.nowFunc()
	outcome := []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(res.Outcome.String())}}
	data := []cwtypes.MetricDatum{
		{
			MetricName: awsString(MetricCycleOutcome),
			Dimensions: outcome,
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(1),
		},
		{
			MetricName: awsString(MetricCycleDuration),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitMilliseconds,
			Value:      awsFloat(float64(elapsed.Milliseconds())),
		},
	}
	if n := c.skipped.Swap(0); n > 0 {
		data = append(data, cwtypes.MetricDatum{
			MetricName: awsString(MetricSkippedTick),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(float64(n)),
		})
	}
	c.put(data)
}

func (c *CloudWatch) ObserveSkip() {
	c.skipped.Add(1)
}

func (c *CloudWatch) put(data []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &c.namespace,
		MetricData: data,
	})
	if err != nil {
		c.logger.Warn("put metric data failed", zap.String("namespace", c.namespace), zap.Error(err))
	}
}

func awsString(s string) *string  { return &s }
func awsFloat(f float64) *float64 { return &f }
