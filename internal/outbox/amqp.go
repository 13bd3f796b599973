package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/safar/checkout-lifecycle/internal/models"
)

const routingKey = "notification"

// AMQPPublisher forwards intents to a broker for an out-of-process mail worker.
type AMQPPublisher struct {
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(ch *amqp.Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

func (p *AMQPPublisher) Dispatch(ctx context.Context, n models.Notification) error {
	msg, err := encodeNotification(n)
	if err != nil {
		return err
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish notification %s: %w", n.ID, err)
	}
	return nil
}

func encodeNotification(n models.Notification) (amqp.Publishing, error) {
	body, err := json.Marshal(n)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode notification %s: %w", n.ID, err)
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		MessageId:    n.ID,
		Type:         string(n.Kind),
		Body:         body,
	}, nil
}

func decodeNotification(body []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	return n, nil
}

// DeclareTopology sets up the exchange, the mail queue and its dead-letter queue.
func DeclareTopology(ch *amqp.Channel, exchange, queue string) error {
	deadLetterExchange := exchange + ".dlx"
	deadLetterQueue := queue + ".dead"

	if err := ch.ExchangeDeclare(deadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(deadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(deadLetterQueue, routingKey, deadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    deadLetterExchange,
		"x-dead-letter-routing-key": routingKey,
	}); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Consume feeds queued intents to dispatcher until ctx ends or the channel closes.
// Failed messages are rejected without requeue and land on the dead-letter queue.
func Consume(ctx context.Context, ch *amqp.Channel, queue string, dispatcher Dispatcher) error {
	deliveries, err := ch.Consume(queue, "checkout-notifier", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	slog.Info("notifier consuming", "queue", queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handleDelivery(ctx, d, dispatcher)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, dispatcher Dispatcher) {
	n, err := decodeNotification(d.Body)
	if err != nil {
		slog.Warn("dropping malformed notification message", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := dispatcher.Dispatch(ctx, n); err != nil {
		slog.Warn("notification delivery failed", "notification_id", n.ID, "kind", n.Kind, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		slog.Error("ack notification", "notification_id", n.ID, "error", err)
	}
}
