package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/clinsura/portal-api/internal/domain/consultation"
)

const (
	// Queue the insurer backend publishes claim decisions to.
	DecisionQueueName = "insurer.decisions"
	// Queue the insurer backend publishes payment notifications to.
	PaymentQueueName = "insurer.payments"
	// Dead-letter queue for poison messages.
	DeadLetterQueueName = "portal.dlq"
)

// errPoison marks a payload that can never be decoded. It goes straight to
// the dead-letter queue so it does not block the queue.
var errPoison = errors.New("poison message")

// DecisionMessage is the insurer's verdict on a submitted consultation.
type DecisionMessage struct {
	ConsultationID string `json:"consultation_id"`
	Accepted       bool   `json:"accepted"`
	InsurerAmount  *int64 `json:"insurer_amount,omitempty"`
	PatientAmount  *int64 `json:"patient_amount,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// PaymentMessage notifies that the insurer paid out an accepted consultation.
type PaymentMessage struct {
	ConsultationID string `json:"consultation_id"`
	PaidAmount     int64  `json:"paid_amount"`
	Reference      string `json:"reference,omitempty"`
}

// DecisionApplier is implemented by the consultation service. The consumer
// stays decoupled from the service construction through it.
type DecisionApplier interface {
	ApplyInsurerDecision(ctx context.Context, id uuid.UUID, accepted bool, insurerAmount, patientAmount *int64, reason string) error
	ApplyPayment(ctx context.Context, id uuid.UUID, paidAmount int64, reference string) error
}

// Consumer drains the insurer queues and applies each message to the
// consultation lifecycle.
type Consumer struct {
	ch      *amqp.Channel
	applier DecisionApplier
	log     zerolog.Logger
	mu      sync.Mutex
}

// NewConsumer opens a channel, declares the durable queues, and sets QoS.
func NewConsumer(conn *amqp.Connection, applier DecisionApplier, logger zerolog.Logger, prefetch int) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	for _, queue := range []string{DecisionQueueName, PaymentQueueName, DeadLetterQueueName} {
		_, err = ch.QueueDeclare(
			queue,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", queue, err)
		}
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		ch:      ch,
		applier: applier,
		log:     logger,
	}, nil
}

// Start begins consuming both queues. It returns immediately; the consume
// loops run until ctx is canceled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	decisions, err := c.ch.Consume(DecisionQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", DecisionQueueName, err)
	}
	payments, err := c.ch.Consume(PaymentQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", PaymentQueueName, err)
	}

	go c.loop(ctx, decisions, c.handleDecision)
	go c.loop(ctx, payments, c.handlePayment)

	return nil
}

// Close shuts down the consumer channel.
func (c *Consumer) Close() error {
	return c.ch.Close()
}

// loop dispatches deliveries. Poison payloads are republished to the DLQ and
// acked; events that can never apply (unknown consultation, transition no
// longer legal) are acked and logged; anything else is assumed transient and
// requeued.
func (c *Consumer) loop(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(context.Context, []byte) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}

			err := handle(ctx, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errPoison):
				c.log.Error().Err(err).Msg("undecodable message, moving to dead-letter queue")
				if dlqErr := c.publishRaw(ctx, DeadLetterQueueName, d.Body); dlqErr != nil {
					c.log.Error().Err(dlqErr).Msg("failed to publish to dead-letter queue")
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			case isPermanent(err):
				c.log.Warn().Err(err).Msg("event can never apply, dropping")
				_ = d.Ack(false)
			default:
				c.log.Error().Err(err).Msg("transient failure, requeueing")
				_ = d.Nack(false, true)
			}
		}
	}
}

// isPermanent reports whether retrying the event can never succeed.
func isPermanent(err error) bool {
	var illegal *consultation.IllegalTransitionError
	return errors.Is(err, consultation.ErrNotFound) || errors.As(err, &illegal)
}

// handleDecision decodes and applies one insurer decision.
func (c *Consumer) handleDecision(ctx context.Context, body []byte) error {
	var msg DecisionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decode decision message: %v", errPoison, err)
	}

	id, err := uuid.Parse(msg.ConsultationID)
	if err != nil {
		return fmt.Errorf("%w: decision message has invalid consultation_id %q", errPoison, msg.ConsultationID)
	}

	if err := c.applier.ApplyInsurerDecision(ctx, id, msg.Accepted, msg.InsurerAmount, msg.PatientAmount, msg.Reason); err != nil {
		return fmt.Errorf("apply decision for consultation %s: %w", id, err)
	}

	c.log.Info().
		Str("consultation_id", id.String()).
		Bool("accepted", msg.Accepted).
		Msg("insurer decision applied")
	return nil
}

// handlePayment decodes and applies one payment notification.
func (c *Consumer) handlePayment(ctx context.Context, body []byte) error {
	var msg PaymentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: decode payment message: %v", errPoison, err)
	}

	id, err := uuid.Parse(msg.ConsultationID)
	if err != nil {
		return fmt.Errorf("%w: payment message has invalid consultation_id %q", errPoison, msg.ConsultationID)
	}

	if err := c.applier.ApplyPayment(ctx, id, msg.PaidAmount, msg.Reference); err != nil {
		return fmt.Errorf("apply payment for consultation %s: %w", id, err)
	}

	c.log.Info().
		Str("consultation_id", id.String()).
		Int64("paid_amount", msg.PaidAmount).
		Msg("payment applied")
	return nil
}

// publishRaw publishes a raw body to a queue (used for poison messages).
func (c *Consumer) publishRaw(ctx context.Context, queue string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}
	if err := c.ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}
