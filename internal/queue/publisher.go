package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/model"
)

const (
	notificationQueueName = "reservation.notifications"
	otpQueueName          = "otp.mails"
)

// Publisher publishes notification messages to RabbitMQ. It dials a fresh
// connection per publish so it carries no broker state and recovers
// transparently from broker restarts. Errors are logged and returned so
// callers can ignore failures without interrupting the main request flow.
type Publisher struct {
	url string
	log zerolog.Logger
}

// NewPublisher returns a publisher targeting the broker at url.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, log: log.With().Str("component", "queue-publisher").Logger()}
}

// Notify publishes a ReservationNotification for the given lifecycle kind.
func (p *Publisher) Notify(ctx context.Context, kind string, res *model.Reservation, meta map[string]string) error {
	msg := ReservationNotification{
		Kind:          kind,
		Code:          res.Code,
		Status:        string(res.Status),
		CustomerEmail: res.CustomerEmail,
		CustomerName:  res.CustomerName,
		ExpiresAt:     res.ExpiresAt.UTC().Format(time.RFC3339),
		ItemsCount:    res.Totals.ItemsCount,
		SubtotalCents: res.Totals.SubtotalCents,
		Meta:          meta,
		SentAt:        time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, notificationQueueName, msg)
}

// NotifyOtp publishes a one-time login code mail.
func (p *Publisher) NotifyOtp(ctx context.Context, email, code string, ttl time.Duration) error {
	msg := OtpMail{
		Email:      email,
		Code:       code,
		TTLMinutes: int(ttl.Minutes()),
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, otpQueueName, msg)
}

func (p *Publisher) publish(ctx context.Context, queueName string, payload interface{}) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error().Err(err).Msg("rabbitmq dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error().Err(err).Msg("rabbitmq channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		p.log.Error().Err(err).Str("queue", queueName).Msg("queue declare failed")
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal payload failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		p.log.Error().Err(err).Str("queue", queueName).Msg("publish failed")
		return err
	}
	return nil
}
