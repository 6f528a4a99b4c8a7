package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"emailer/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchDeliveryMetrics emits delivery metrics to CloudWatch. Failures to
// publish are logged and never surface to the caller.
//
// Metrics emitted:
//   - MessagesBuilt / MessagesDiscarded: no dims
//   - DeliveryAttempt: Dims {Mode, Provider} plus one of DeliverySuccess or DeliveryFailed
//   - DeliveryLatency: Dims {Mode}
type CloudWatchDeliveryMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

var _ DeliveryMetrics = (*CloudWatchDeliveryMetrics)(nil)

// NewCloudWatchDeliveryMetrics publishes under namespace, falling back to
// types.MetricNamespace.
func NewCloudWatchDeliveryMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchDeliveryMetrics {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchDeliveryMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchDeliveryMetrics) RecordBuilt(ctx context.Context, count int) {
	m.put(ctx, countDatum(types.MetricMessagesBuilt, count))
}

func (m *CloudWatchDeliveryMetrics) RecordDiscarded(ctx context.Context, count int) {
	m.put(ctx, countDatum(types.MetricMessagesDiscarded, count))
}

// RecordDelivery emits the attempt and its outcome in one call.
func (m *CloudWatchDeliveryMetrics) RecordDelivery(ctx context.Context, mode types.DeliveryMode, provider string, result MetricResult) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
		{Name: aws.String(types.DimProvider), Value: aws.String(provider)},
	}
	data := []cwtypes.MetricDatum{withDims(countDatum(types.MetricDeliveryAttempt, 1), dims)}
	switch result {
	case MetricSuccess:
		data = append(data, withDims(countDatum(types.MetricDeliverySuccess, 1), dims))
	case MetricFailed:
		data = append(data, withDims(countDatum(types.MetricDeliveryFailed, 1), dims))
	}
	m.put(ctx, data...)
}

// RecordLatency is recorded in milliseconds.
func (m *CloudWatchDeliveryMetrics) RecordLatency(ctx context.Context, mode types.DeliveryMode, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricDeliveryLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimMode), Value: aws.String(string(mode))},
		},
	})
}

// RecordRequest records one API request. The endpoint is not a dimension
// since paths carry object ids.
func (m *CloudWatchDeliveryMetrics) RecordRequest(method, _ string, status string, d time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(types.DimMethod), Value: aws.String(method)},
		{Name: aws.String(types.DimStatus), Value: aws.String(status)},
	}
	m.put(context.Background(),
		withDims(countDatum(types.MetricAPIRequestCount, 1), dims),
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(d.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims[:1],
		},
	)
}

func (m *CloudWatchDeliveryMetrics) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.Error("Failed to publish metrics",
			"metric", aws.ToString(data[0].MetricName),
			"error", err.Error(),
		)
	}
}

func countDatum(name string, n int) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(n)),
		Unit:       cwtypes.StandardUnitCount,
	}
}

func withDims(d cwtypes.MetricDatum, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	d.Dimensions = dims
	return d
}
