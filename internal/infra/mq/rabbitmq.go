// Package mq carries scan requests over RabbitMQ.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bryanwahyu/automaton-risk/internal/application/scans"
)

// DefaultQueue is the durable queue of scan requests.
const DefaultQueue = "scan_requests"

func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

// Publisher sends scan requests; it implements scans.Dispatcher.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex // amqp channels are not safe for concurrent publish
}

func NewPublisher(url, queue string) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Dispatch(ctx context.Context, req scans.Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
}

func (p *Publisher) Close() error {
	return errors.Join(p.ch.Close(), p.conn.Close())
}

// Handler runs one scan request.
type Handler func(ctx context.Context, req scans.Request) error

// Consumer feeds queued requests to a pool of workers.
type Consumer struct {
	URL      string
	Queue    string
	Workers  int
	Handler  Handler
	// Validate rejects targets before they reach Handler; nil accepts all.
	Validate func(target string) error
	Logger   *slog.Logger
}

// Run consumes until ctx is done or the connection drops. Each worker handles
// one request at a time, so at most Workers scans run concurrently.
func (c *Consumer) Run(ctx context.Context) error {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	queue := c.Queue
	if queue == "" {
		queue = DefaultQueue
	}

	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	q, err := declare(ch, queue)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	// QoS: prefetch equals worker count
	if err := ch.Qos(workers, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	log := c.logger().With("queue", queue)
	log.Info("consumer started", "workers", workers)

	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for d := range msgs {
				c.handle(ctx, log.With("worker", id), d)
			}
		}(w)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return errors.New("delivery channel closed")
}

func (c *Consumer) handle(ctx context.Context, log *slog.Logger, d amqp.Delivery) {
	req, err := Decode(d.Body)
	if err != nil {
		log.Warn("drop malformed request", "error", err)
		if err := d.Nack(false, false); err != nil {
			log.Warn("nack", "error", err)
		}
		return
	}
	if c.Validate != nil {
		if err := c.Validate(req.Target); err != nil {
			log.Warn("drop rejected target", "target", req.Target, "error", err)
			if err := d.Nack(false, false); err != nil {
				log.Warn("nack", "error", err)
			}
			return
		}
	}
	// scans are not retried; a failed run is already recorded as failed
	if err := c.Handler(context.WithoutCancel(ctx), req); err != nil {
		log.Error("scan request failed", "target", req.Target, "error", err)
	}
	if err := d.Ack(false); err != nil {
		log.Warn("ack", "error", err)
	}
}

// Decode accepts a JSON request or, for plain-text producers, a bare target.
func Decode(body []byte) (scans.Request, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return scans.Request{}, errors.New("empty message")
	}
	var req scans.Request
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return scans.Request{}, fmt.Errorf("decode request: %w", err)
		}
	} else {
		req.Target = text
	}
	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		return scans.Request{}, errors.New("request without target")
	}
	return req, nil
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
