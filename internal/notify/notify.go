// Package notify publishes confirmed-booking events to NATS so downstream
// systems (driver allocation, SMS confirmation senders) can react without
// polling the booking store.
//
// Publishing is strictly best-effort: a booking that failed to publish is
// still booked, so publish errors are logged and counted but never surfaced
// to the caller.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ridelinehq/dispatchd/internal/booking"
)

// DefaultSubject is the NATS subject confirmed bookings are published on.
const DefaultSubject = "dispatch.booking.confirmed"

// BookingConfirmed is the event payload emitted once per persisted booking.
type BookingConfirmed struct {
	CallID      string         `json:"call_id"`
	Booking     booking.Record `json:"booking"`
	ConfirmedAt time.Time      `json:"confirmed_at"`
}

// Publisher emits booking events over a NATS connection. The zero value is a
// no-op publisher, so callers can hold a *Publisher unconditionally and skip
// the nil checks when events are not configured.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// New connects to the NATS server at url. token may be empty for servers
// without token auth; subject falls back to [DefaultSubject] when empty.
func New(url, token, subject string, logger *slog.Logger) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: connect %q: %w", url, err)
	}
	return &Publisher{conn: nc, subject: subject, logger: logger}, nil
}

// BookingConfirmed publishes one confirmed-booking event. On a nil or
// unconfigured publisher it does nothing.
func (p *Publisher) BookingConfirmed(callID string, rec booking.Record) {
	if p == nil || p.conn == nil {
		return
	}
	payload, err := json.Marshal(BookingConfirmed{
		CallID:      callID,
		Booking:     rec,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("marshal booking event", "call_id", callID, "err", err)
		return
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn("publish booking event", "call_id", callID, "err", err)
	}
}

// Close drains the connection. Safe on a nil or unconfigured publisher.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
