package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/swarmguard/taskexecutor/pkg/resilience"
)

// MetricMessageSender pushes primitive-valued metrics to the master (spec
// §6: "send(metric_type, task_id, key, serialized_value)"), rate-limited
// so a metric-heavy task cannot overwhelm the master connection.
type MetricMessageSender struct {
	sender  MessageSender
	limiter *resilience.RateLimiter
}

// NewMetricMessageSender wraps sender with a rate limiter tuned for
// metric traffic, which is bursty but low-value-per-message.
func NewMetricMessageSender(sender MessageSender) *MetricMessageSender {
	return &MetricMessageSender{
		sender:  sender,
		limiter: resilience.NewRateLimiter(20, 5, 0, 0),
	}
}

// Send serializes value and sends it under key/metricType. Every metric
// send execute() makes (spec §4.5) goes through here with a serialized
// primitive payload. A send refused by the rate limiter is dropped and
// returns nil.
func (m *MetricMessageSender) Send(ctx context.Context, metricType, taskID, key string, value any) error {
	if !m.limiter.Allow() {
		slog.Warn("metric send rate limited", "metric_type", metricType, "key", key)
		return nil
	}
	serialized, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("serialize metric %s/%s: %w", metricType, key, err)
	}
	msg := Message{
		Type: MessageType(metricType),
		Payload: DataCollectMessage{
			Data: fmt.Sprintf(`{"task_id":%q,"key":%q,"value":%s}`, taskID, key, serialized),
		},
	}
	return m.sender.Send(ctx, msg)
}
