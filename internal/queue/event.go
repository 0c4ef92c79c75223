// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into outbound mail log lines.
package queue

// ReservationNotification is published whenever a reservation lifecycle
// transition should notify the customer.  It carries enough information
// for downstream consumers to render a mail without querying the
// primary database.
type ReservationNotification struct {
	Kind          string            `json:"kind"` // created, cancelled, expired, statusChanged
	Code          string            `json:"code"`
	Status        string            `json:"status"`
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name,omitempty"`
	ExpiresAt     string            `json:"expires_at"`
	ItemsCount    int               `json:"items_count"`
	SubtotalCents int64             `json:"subtotal_cents"`
	Meta          map[string]string `json:"meta,omitempty"`
	SentAt        string            `json:"sent_at"`
}

// OtpMail is published when a customer requests a one-time login code.
type OtpMail struct {
	Email      string `json:"email"`
	Code       string `json:"code"`
	TTLMinutes int    `json:"ttl_minutes"`
	SentAt     string `json:"sent_at"`
}
