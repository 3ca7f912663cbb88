// Package dialog contains the per-call state machine that drives a booking
// conversation from greeting to confirmed ride.
//
// The [Controller] is the only component that orchestrates the others: it
// owns session lifecycle, feeds caller turns through the interpreter, merges
// field suggestions into the booking record, runs the address correction
// pass, applies the confirmation safety net, and persists the finished
// booking exactly once. Turns for one call are serialized on a per-call
// mutex; turns for different calls run concurrently.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridelinehq/dispatchd/internal/address"
	"github.com/ridelinehq/dispatchd/internal/bookings"
	"github.com/ridelinehq/dispatchd/internal/interp"
	"github.com/ridelinehq/dispatchd/internal/notify"
	"github.com/ridelinehq/dispatchd/internal/observe"
	"github.com/ridelinehq/dispatchd/internal/session"
)

// Fixed caller-facing lines. Downstream voice rendering speaks these
// verbatim, so changes here change what every caller hears.
const (
	// Greeting opens every call.
	Greeting = "Welcome! Let's book your ride. First, what's your name?"

	// RePrompt is spoken when no speech was recognised, and as the generic
	// continuation prompt when a turn arrives for an unknown call.
	RePrompt = "Sorry, I didn't catch that. Could you say it again?"

	// SignOff ends a successfully booked call.
	SignOff = "You'll receive an SMS confirmation shortly. Have a lovely day!"

	// StoreFailure ends a call whose booking could not be saved. Distinct
	// from SignOff so the caller is never told a lost booking succeeded.
	StoreFailure = "Sorry, we could not save your booking. Please call back and we'll take your details again."
)

// ErrNoSession is returned by [Controller.Turn] when no session exists for
// the call ID. The accompanying [Result] still carries a spoken line — the
// call itself is never crashed.
var ErrNoSession = errors.New("dialog: no session for call")

// affirmations is the confirmation safety net: if the interpreter failed to
// set the confirmed flag but the caller's whole utterance is one of these,
// the booking is treated as confirmed. Deliberately narrow — substring or
// fuzzy matching here would confirm bookings on phrases like
// "yes, but change the pickup".
var affirmations = map[string]struct{}{
	"yes":     {},
	"yeah":    {},
	"correct": {},
}

// Result is what the gateway renders back to the call transport after a
// controller operation.
type Result struct {
	// Say is the line spoken to the caller.
	Say string

	// Hangup indicates the call is over: no further turns are expected and
	// the transport should not listen for more speech.
	Hangup bool
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithPublisher attaches a confirmed-booking event publisher.
func WithPublisher(p *notify.Publisher) Option {
	return func(c *Controller) {
		c.events = p
	}
}

// WithMetrics attaches a metrics instance; when nil, turns are not measured.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller implements the dialogue state machine. Safe for concurrent use.
type Controller struct {
	sessions session.Store
	interp   *interp.Adapter
	addr     *address.Corrector
	store    bookings.Store
	events   *notify.Publisher
	metrics  *observe.Metrics
	locks    *keyedMutex
}

// New creates a Controller over the given collaborators.
func New(sessions session.Store, adapter *interp.Adapter, corrector *address.Corrector, store bookings.Store, opts ...Option) *Controller {
	c := &Controller{
		sessions: sessions,
		interp:   adapter,
		addr:     corrector,
		store:    store,
		locks:    newKeyedMutex(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartCall creates the session for a new call and returns the greeting.
// A duplicate start for a live call keeps the existing session untouched and
// simply re-issues the greeting, so a transport-level retry of the start
// webhook cannot wipe collected state.
func (c *Controller) StartCall(ctx context.Context, callID, phone string) (Result, error) {
	c.locks.lock(callID)
	defer c.locks.unlock(callID)

	_, err := c.sessions.Create(ctx, callID, phone)
	switch {
	case errors.Is(err, session.ErrExists):
		observe.Logger(ctx).Warn("duplicate call start; keeping existing session", "call_id", callID)
	case err != nil:
		return Result{}, fmt.Errorf("dialog: start call %q: %w", callID, err)
	default:
		observe.Logger(ctx).Info("call started", "call_id", callID)
		if c.metrics != nil {
			c.metrics.ActiveCalls.Add(ctx, 1)
		}
	}
	return Result{Say: Greeting}, nil
}

// Turn processes one caller utterance for callID and returns what to say
// next. Concurrent turns for the same call are serialized; the whole
// read-modify-write cycle below is one critical section.
func (c *Controller) Turn(ctx context.Context, callID, utterance string) (Result, error) {
	c.locks.lock(callID)
	defer c.locks.unlock(callID)

	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	sess, err := c.sessions.Get(ctx, callID)
	if err != nil {
		observe.Logger(ctx).Warn("turn for unknown call", "call_id", callID, "err", err)
		return Result{Say: RePrompt}, fmt.Errorf("%w: %q", ErrNoSession, callID)
	}

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		if c.metrics != nil {
			c.metrics.EmptyTurns.Add(ctx, 1)
		}
		return Result{Say: RePrompt}, nil
	}

	reply := c.interp.Interpret(ctx, sess, utterance)

	if changed := sess.Booking.Apply(reply.Fields); len(changed) > 0 {
		observe.Logger(ctx).Info("booking fields updated",
			"call_id", callID, "fields", strings.Join(changed, ","))
	}

	// Correction runs on every turn where both pieces are present, so a
	// postcode arriving after the pickup retroactively corrects it.
	if sess.Booking.Pickup != "" && sess.Booking.PickupPostcode != "" {
		corrected := c.addr.Correct(ctx, sess.Booking.Pickup, sess.Booking.PickupPostcode)
		if corrected != sess.Booking.Pickup {
			observe.Logger(ctx).Info("pickup address corrected",
				"call_id", callID, "from", sess.Booking.Pickup, "to", corrected)
			sess.Booking.Pickup = corrected
		}
	}

	confirmed := reply.Fields.Confirmed
	if !confirmed {
		if _, ok := affirmations[strings.ToLower(utterance)]; ok {
			observe.Logger(ctx).Info("confirmation safety net triggered", "call_id", callID)
			confirmed = true
		}
	}

	if !confirmed {
		// Save refreshes the activity timestamp under the store's own lock;
		// touching the session here would race the TTL janitor.
		if err := c.sessions.Save(ctx, sess); err != nil {
			return Result{}, fmt.Errorf("dialog: save session %q: %w", callID, err)
		}
		return Result{Say: reply.Text}, nil
	}

	return c.finish(ctx, sess)
}

// finish persists the confirmed booking and tears the session down. The
// append is attempted at most twice; whatever the outcome, the session is
// removed — the call ends here either way, and a retried terminal turn must
// not persist a second row.
func (c *Controller) finish(ctx context.Context, sess *session.Session) (Result, error) {
	log := observe.Logger(ctx)

	err := c.store.Append(ctx, sess.Booking)
	if err != nil {
		log.Warn("booking append failed; retrying once", "call_id", sess.CallID, "err", err)
		err = c.store.Append(ctx, sess.Booking)
	}

	c.teardown(ctx, sess.CallID)

	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordBookingPersisted(ctx, "error")
		}
		log.Error("booking lost: store append failed twice", "call_id", sess.CallID, "err", err)
		return Result{Say: StoreFailure, Hangup: true}, fmt.Errorf("dialog: persist booking for %q: %w", sess.CallID, err)
	}

	if c.metrics != nil {
		c.metrics.RecordBookingPersisted(ctx, "ok")
	}
	log.Info("booking confirmed", "call_id", sess.CallID, "phone", sess.Booking.Phone)
	c.events.BookingConfirmed(sess.CallID, sess.Booking)

	return Result{Say: SignOff, Hangup: true}, nil
}

// teardown removes the session and decrements the active-call gauge.
func (c *Controller) teardown(ctx context.Context, callID string) {
	if err := c.sessions.Remove(ctx, callID); err != nil {
		observe.Logger(ctx).Warn("remove session", "call_id", callID, "err", err)
		return
	}
	if c.metrics != nil {
		c.metrics.ActiveCalls.Add(ctx, -1)
	}
}
