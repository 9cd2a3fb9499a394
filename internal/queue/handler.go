package queue

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphsync/internal/consistency"
	"github.com/OFFIS-RIT/graphsync/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// MaxRetries is how often a message goes through the retry queue before it
// is parked in the dead-letter queue.
const MaxRetries = 10

const retriesHeader = "x-retries"

func retriesOf(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleProcessingError moves a failed delivery to the retry queue, or to
// the dead-letter queue once it has been retried MaxRetries times. The
// delivery is requeued when neither publish succeeds.
func HandleProcessingError(ch Publisher, msg amqp091.Delivery, queueName string) {
	retries := retriesOf(msg.Headers)

	if retries >= MaxRetries {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType: msg.ContentType,
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			_ = msg.Nack(false, true)
			return
		}
		_ = msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			Headers:      headers,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

// RecoverGraphs asks the worker to start a driver for every graph that was
// marked initialized when the previous worker went away.
func RecoverGraphs(ctx context.Context, ch Publisher, statuses consistency.StatusStore) error {
	graphs, err := statuses.ListGraphs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list graphs: %w", err)
	}

	recovered := 0
	for _, g := range graphs {
		if !g.Initialized {
			continue
		}
		err := PublishSync(ch, SyncMessage{Graph: g.Graph, Action: ActionStart, CorrelationID: "recovery"})
		if err != nil {
			logger.Error("[Queue] Failed to publish recovery message", "graph", g.Graph, "err", err)
			continue
		}
		recovered++
	}

	if recovered == 0 {
		logger.Debug("[Queue] No graphs to recover")
		return nil
	}
	logger.Info("[Queue] Requested driver recovery", "count", recovered)
	return nil
}
