package interp_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ridelinehq/dispatchd/internal/interp"
	"github.com/ridelinehq/dispatchd/internal/interp/mock"
	"github.com/ridelinehq/dispatchd/internal/session"
)

func TestInterpret_ParsesFields(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `{
		"response": "How many passengers?",
		"fields": {"name": "Alice", "passengers": "", "confirmed": false}
	}`}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	reply := a.Interpret(context.Background(), sess, "My name is Alice")

	if reply.Text != "How many passengers?" {
		t.Errorf("Text=%q, want question", reply.Text)
	}
	if reply.Fields.Name != "Alice" {
		t.Errorf("Fields.Name=%q, want Alice", reply.Fields.Name)
	}
	if reply.Fields.Confirmed {
		t.Error("Fields.Confirmed=true, want false")
	}
}

func TestInterpret_StripsCodeFence(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: "```json\n" + `{"response": "Noted.", "fields": {"dropoff": "Airport"}}` + "\n```"}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	reply := a.Interpret(context.Background(), sess, "going to the airport")

	if reply.Text != "Noted." {
		t.Errorf("Text=%q, want Noted.", reply.Text)
	}
	if reply.Fields.Dropoff != "Airport" {
		t.Errorf("Fields.Dropoff=%q, want Airport", reply.Fields.Dropoff)
	}
}

func TestInterpret_MalformedJSONFailsClosed(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: "Sure thing, booking a ride for two!"}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	reply := a.Interpret(context.Background(), sess, "two passengers")

	if reply.Text != interp.Apology {
		t.Errorf("Text=%q, want apology", reply.Text)
	}
	if !reply.Fields.Empty() {
		t.Errorf("Fields=%+v, want empty", reply.Fields)
	}
}

func TestInterpret_TransportErrorFailsClosed(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Err: errors.New("connection reset")}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	reply := a.Interpret(context.Background(), sess, "hello")

	if reply.Text != interp.Apology {
		t.Errorf("Text=%q, want apology", reply.Text)
	}

	// The caller turn and the apology must both be on the transcript so the
	// next turn carries full context.
	if len(sess.Transcript) != 2 {
		t.Fatalf("transcript has %d turns, want 2", len(sess.Transcript))
	}
	if sess.Transcript[0].Role != session.RoleCaller || sess.Transcript[0].Text != "hello" {
		t.Errorf("turn 0 = %+v, want caller hello", sess.Transcript[0])
	}
	if sess.Transcript[1].Role != session.RoleAgent || sess.Transcript[1].Text != interp.Apology {
		t.Errorf("turn 1 = %+v, want agent apology", sess.Transcript[1])
	}
}

func TestInterpret_TranscriptCarriesRawJSON(t *testing.T) {
	t.Parallel()

	raw := `{"response": "Got it.", "fields": {"name": "Bob"}}`
	p := &mock.Provider{Response: raw}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	a.Interpret(context.Background(), sess, "I'm Bob")
	a.Interpret(context.Background(), sess, "just me travelling")

	// Second request must replay the raw JSON agent turn as an assistant
	// message, mapped from transcript roles.
	second := p.Calls[1]
	if len(second.Messages) != 3 {
		t.Fatalf("second call has %d messages, want 3", len(second.Messages))
	}
	if second.Messages[0].Role != interp.RoleUser {
		t.Errorf("message 0 role=%q, want user", second.Messages[0].Role)
	}
	if second.Messages[1].Role != interp.RoleAssistant || second.Messages[1].Content != raw {
		t.Errorf("message 1 = %+v, want assistant raw JSON", second.Messages[1])
	}
	if second.Messages[2].Content != "just me travelling" {
		t.Errorf("message 2 content=%q, want latest utterance", second.Messages[2].Content)
	}
}

func TestInterpret_MissingResponseTextFailsClosed(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: `{"fields": {"name": "Carol"}}`}
	a := interp.New(p)
	sess := session.New("CA1", "+44700900123")

	reply := a.Interpret(context.Background(), sess, "Carol")

	if reply.Text != interp.Apology {
		t.Errorf("Text=%q, want apology", reply.Text)
	}
	if reply.Fields.Name != "" {
		t.Errorf("Fields.Name=%q, want empty — no partial updates on failure", reply.Fields.Name)
	}
}
