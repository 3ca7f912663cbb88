// Package session tracks per-call conversation state: the ordered transcript
// of caller and agent turns plus the partially filled booking record.
//
// Exactly one session exists per active call identifier. Sessions are created
// when the call starts, mutated once per caller turn, and removed when the
// call terminates. A [Store] implementation is responsible for lifecycle and
// stale-session eviction; serialization of turns for one call is handled by
// the dialogue controller, so stores only need to provide atomic point
// operations per call ID.
package session

import (
	"errors"
	"time"

	"github.com/ridelinehq/dispatchd/internal/booking"
)

var (
	// ErrExists is returned by [Store.Create] when a session already exists
	// for the call ID. Duplicate call-start events are rejected rather than
	// silently replacing live state.
	ErrExists = errors.New("session: already exists")

	// ErrNotFound is returned by [Store.Get] and [Store.Remove] when no
	// session exists for the call ID.
	ErrNotFound = errors.New("session: not found")
)

// Role tags a transcript turn with its speaker.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// TranscriptTurn is one utterance in the conversation. Agent turns hold the
// interpreter's raw structured reply so the model sees its own earlier
// output as context.
type TranscriptTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is the in-memory state for one active call.
type Session struct {
	// CallID is the transport-supplied call identifier, unique per active call.
	CallID string `json:"call_id"`

	// Transcript is the append-only conversation history.
	Transcript []TranscriptTurn `json:"transcript"`

	// Booking is the record being filled in over the call.
	Booking booking.Record `json:"booking"`

	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// New creates a Session for callID with the caller's phone number pre-filled
// on the booking record.
func New(callID, phone string) *Session {
	now := time.Now().UTC()
	return &Session{
		CallID:     callID,
		Booking:    booking.Record{Phone: phone},
		CreatedAt:  now,
		LastActive: now,
	}
}

// Append adds one turn to the transcript.
func (s *Session) Append(role Role, text string) {
	s.Transcript = append(s.Transcript, TranscriptTurn{Role: role, Text: text})
}

// Touch updates the last-activity timestamp used for stale eviction.
func (s *Session) Touch() {
	s.LastActive = time.Now().UTC()
}
