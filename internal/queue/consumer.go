package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// StartNotificationConsumer connects to RabbitMQ, declares the notification
// and OTP queues (durable), and starts consuming. Each reservation message
// is appended to logs/notifications.log and each OTP message to
// logs/otp.log in a single-line, human-friendly format. The function runs
// a reconnect loop with exponential backoff and never returns under normal
// operation; processing errors are logged and the offending message is
// rejected without requeue so the server keeps operating.
func StartNotificationConsumer(url string, log zerolog.Logger) {
	log = log.With().Str("component", "queue-consumer").Logger()

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(conn, log); err != nil {
			log.Warn().Err(err).Msg("consume loop ended, reconnecting")
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, log zerolog.Logger) error {
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("set QoS failed")
	}

	for _, name := range []string{notificationQueueName, otpQueueName} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
	}

	notifications, err := ch.Consume(notificationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", notificationQueueName, err)
	}
	otps, err := ch.Consume(otpQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", otpQueueName, err)
	}

	for {
		select {
		case d, ok := <-notifications:
			if !ok {
				return errors.New("notification deliveries channel closed")
			}
			ackOrReject(d, handleNotification(d.Body), log)
		case d, ok := <-otps:
			if !ok {
				return errors.New("otp deliveries channel closed")
			}
			ackOrReject(d, handleOtp(d.Body), log)
		}
	}
}

func ackOrReject(d amqp.Delivery, err error, log zerolog.Logger) {
	if err != nil {
		log.Error().Err(err).Msg("handle message failed")
		_ = d.Nack(false, false) // do not requeue to avoid tight loops
		return
	}
	_ = d.Ack(false)
}

func handleNotification(body []byte) error {
	var msg ReservationNotification
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line := fmt.Sprintf("[%s] Reservation %s | code=%s | status=%s | email=%s | items=%d | subtotal=%d cents | expires_at=%s\n",
		msg.SentAt, msg.Kind, msg.Code, msg.Status, msg.CustomerEmail, msg.ItemsCount, msg.SubtotalCents, msg.ExpiresAt)
	return appendLine("notifications.log", line)
}

func handleOtp(body []byte) error {
	var msg OtpMail
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	line := fmt.Sprintf("[%s] OTP code | email=%s | code=%s | valid_minutes=%d\n",
		msg.SentAt, msg.Email, msg.Code, msg.TTLMinutes)
	return appendLine("otp.log", line)
}

func appendLine(file, line string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join("logs", file), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
