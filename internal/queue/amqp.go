package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/videoflix/streamcore/internal/config"
)

const (
	transcodeQueueName = "transcode_jobs"
	exchangeName       = "streamcore"
)

// AMQPBroker carries job ids over a durable RabbitMQ queue, so queued work
// survives process restarts on both sides.
type AMQPBroker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewAMQPBroker connects and declares the durable exchange/queue pair.
func NewAMQPBroker(cfg config.QueueConfig) (*AMQPBroker, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = channel.QueueDeclare(
		transcodeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = channel.QueueBind(
		transcodeQueueName,
		transcodeQueueName,
		exchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &AMQPBroker{conn: conn, channel: channel}, nil
}

// Publish sends a job id as a persistent message.
func (b *AMQPBroker) Publish(ctx context.Context, jobID string) error {
	err := b.channel.PublishWithContext(ctx,
		exchangeName,
		transcodeQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "text/plain",
			Body:         []byte(jobID),
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// PublishAfter republishes a job id after the backoff delay. The delay
// timer lives in this process; if it dies, the recovery sweep republishes
// the still-queued job.
func (b *AMQPBroker) PublishAfter(ctx context.Context, jobID string, delay time.Duration) error {
	time.AfterFunc(delay, func() {
		if err := b.Publish(context.Background(), jobID); err != nil {
			// Swallowed: the stale-queued sweep is the backstop.
			_ = err
		}
	})
	return nil
}

// Consume registers one consumer. The handler owns retry policy, so
// deliveries are acked regardless of handler outcome; redelivery via nack
// would bypass the attempt accounting in the job store.
func (b *AMQPBroker) Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error {
	err := b.channel.Qos(
		1,     // prefetch count
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := b.channel.Consume(
		transcodeQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				_ = handler(ctx, string(msg.Body))
				msg.Ack(false)
			}
		}
	}()

	return nil
}

// Close closes the channel and connection.
func (b *AMQPBroker) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
