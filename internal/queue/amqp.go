package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/unclebandit/mailcampaign-sender/internal/logx"
)

// AMQPQueue publishes send jobs to RabbitMQ and consumes them with manual acks.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex

	tags     []string
	inflight sync.WaitGroup
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (q *AMQPQueue) Publish(ctx context.Context, topic string, job SendJob) error {
	body, err := encodeJob(job)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Subscribe consumes topic on a background goroutine. Deliveries are handled
// one at a time and acked after the handler returns.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.declare(topic); err != nil {
		return err
	}
	if err := q.ch.Qos(1, 0, false); err != nil {
		return err
	}
	tag := "campaign-worker-" + uuid.NewString()
	msgs, err := q.ch.Consume(
		topic,
		tag,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}
	q.tags = append(q.tags, tag)

	go q.consume(topic, msgs, handler)
	return nil
}

func (q *AMQPQueue) consume(topic string, msgs <-chan amqp.Delivery, handler Handler) {
	for d := range msgs {
		q.inflight.Add(1)
		if handleDelivery(context.Background(), topic, d.Body, handler) {
			d.Ack(false)
		} else {
			d.Nack(false, false)
		}
		q.inflight.Done()
	}
	logx.L().Infow("amqp_consumer_closed", "topic", topic)
}

// Shutdown stops consuming new deliveries and waits for the ones being
// handled to finish, or for ctx to end. The connection stays open so the
// in-flight handlers can still ack.
func (q *AMQPQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	tags := q.tags
	q.tags = nil
	q.mu.Unlock()

	for _, tag := range tags {
		if err := q.ch.Cancel(tag, false); err != nil {
			logx.L().Warnw("amqp_consumer_cancel_failed", "tag", tag, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleDelivery runs one delivery and reports whether it should be acked.
// A finished run has already recorded its outcome, so handler errors are
// acked too. Malformed jobs are acked and dropped; only a panic is rejected.
func handleDelivery(ctx context.Context, topic string, body []byte, handler Handler) (ack bool) {
	job, err := decodeJob(body)
	if err != nil {
		logx.L().Warnw("job_dropped", "topic", topic, "error", err)
		return true
	}

	defer func() {
		if rec := recover(); rec != nil {
			logx.L().Errorw("job_panicked", "topic", topic, "campaign_id", job.CampaignID, "panic", rec)
			ack = false
		}
	}()

	if err := handler(ctx, job); err != nil {
		logx.L().Warnw("job_failed", "topic", topic, "campaign_id", job.CampaignID, "error", err)
	}
	return true
}

// NotifyClose reports when the broker connection drops.
func (q *AMQPQueue) NotifyClose() <-chan *amqp.Error {
	return q.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
