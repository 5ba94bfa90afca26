// Package metrics counts funnel steps.
package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/go-logr/logr"

	"github.com/imrishuroy/go-funnel-bot/internal/aws"
)

// Funnel counter names.
const (
	Start          = "start"
	Interested     = "interested"
	Subscribed     = "subscribed"
	NotSubscribed  = "not_subscribed"
	IntentCreated  = "intent_created"
	IntentFallback = "intent_fallback"
	Purchased      = "purchased"
	ReminderSent   = "reminder_sent"
)

// Recorder increments a named counter for a product. Implementations never fail the caller.
type Recorder interface {
	Incr(ctx context.Context, name, product string)
}

// Nop discards every count.
type Nop struct{}

func (Nop) Incr(context.Context, string, string) {}

// CloudWatchRecorder puts one Count datum per increment.
type CloudWatchRecorder struct {
	client    aws.CloudWatchAPI
	namespace string
	log       logr.Logger
	nowFunc   func() time.Time
}

func NewCloudWatchRecorder(client aws.CloudWatchAPI, namespace string, log logr.Logger) *CloudWatchRecorder {
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		log:       log.WithName("metrics"),
		nowFunc:   time.Now,
	}
}

func (r *CloudWatchRecorder) Incr(ctx context.Context, name, product string) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(1),
		Timestamp:  sdkaws.Time(r.nowFunc().UTC()),
	}
	if product != "" {
		datum.Dimensions = []cwtypes.Dimension{{
			Name:  sdkaws.String("Product"),
			Value: sdkaws.String(product),
		}}
	}
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		r.log.Error(err, "put metric failed", "metric", name, "product", product)
	}
}
