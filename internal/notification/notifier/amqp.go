package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is the JSON body published for the mail delivery service.
type Message struct {
	Recipient  string            `json:"recipient"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables,omitempty"`
	SentAt     time.Time         `json:"sent_at"`
}

// AMQPNotifier publishes notifications to a durable RabbitMQ queue with
// publisher confirms. Notify returns nil only once the broker has acked.
type AMQPNotifier struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	chn   *amqp.Channel
	queue string
}

func NewAMQPNotifier(url, queue string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := chn.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := chn.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return &AMQPNotifier{conn: conn, chn: chn, queue: queue}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, recipient, templateID string, vars map[string]string) error {
	body, err := encodeMessage(recipient, templateID, vars, time.Now())
	if err != nil {
		return err
	}

	// Channels are not safe for concurrent publishing.
	n.mu.Lock()
	confirm, err := n.chn.PublishWithDeferredConfirmWithContext(ctx, "", n.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await publish confirm: %w", err)
	}
	if !acked {
		return errors.New("broker nacked notification")
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.chn.Close(); err != nil {
		return err
	}
	return n.conn.Close()
}

func encodeMessage(recipient, templateID string, vars map[string]string, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Message{
		Recipient:  recipient,
		TemplateID: templateID,
		Variables:  vars,
		SentAt:     at.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return body, nil
}
