package dialog_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ridelinehq/dispatchd/internal/address"
	"github.com/ridelinehq/dispatchd/internal/booking"
	"github.com/ridelinehq/dispatchd/internal/dialog"
	"github.com/ridelinehq/dispatchd/internal/interp"
	"github.com/ridelinehq/dispatchd/internal/interp/mock"
	"github.com/ridelinehq/dispatchd/internal/session"
)

// fakeStore is an in-memory bookings.Store recording appends. FailFirst
// makes the first N appends fail to exercise the retry path.
type fakeStore struct {
	mu        sync.Mutex
	records   []booking.Record
	failFirst int
}

func (s *fakeStore) Append(_ context.Context, rec booking.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFirst > 0 {
		s.failFirst--
		return errors.New("disk full")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// newCorrector returns a Corrector backed by a test index serving the given
// candidate list for every postcode.
func newCorrector(t *testing.T, candidates string) *address.Corrector {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": ` + candidates + `}`))
	}))
	t.Cleanup(srv.Close)
	return address.New(srv.URL)
}

func newController(t *testing.T, p interp.Provider, store *fakeStore) *dialog.Controller {
	t.Helper()
	return dialog.New(
		session.NewMemoryStore(),
		interp.New(p),
		newCorrector(t, `[]`),
		store,
	)
}

// modelJSON builds a minimal valid interpreter reply.
func modelJSON(response string, fields string) string {
	return `{"response": "` + response + `", "fields": ` + fields + `}`
}

func TestStartCall_Greets(t *testing.T) {
	t.Parallel()

	c := newController(t, &mock.Provider{}, &fakeStore{})

	res, err := c.StartCall(context.Background(), "CA1", "+44700900123")
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if res.Say != dialog.Greeting {
		t.Errorf("Say=%q, want greeting", res.Say)
	}
	if res.Hangup {
		t.Error("Hangup=true on call start")
	}
}

func TestStartCall_DuplicateKeepsSession(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: modelJSON("Thanks Alice!", `{"name": "Alice"}`)}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	if _, err := c.Turn(ctx, "CA1", "I'm Alice"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	// A retried start webhook must re-greet without wiping collected fields.
	res, err := c.StartCall(ctx, "CA1", "+44700900123")
	if err != nil {
		t.Fatalf("duplicate StartCall: %v", err)
	}
	if res.Say != dialog.Greeting {
		t.Errorf("Say=%q, want greeting", res.Say)
	}

	p.Response = modelJSON("Noted.", `{}`)
	if _, err := c.Turn(ctx, "CA1", "hello again"); err != nil {
		t.Fatalf("Turn after duplicate start: %v", err)
	}
	// Transcript context from before the duplicate start must still be there.
	last := p.Calls[len(p.Calls)-1]
	if len(last.Messages) < 3 {
		t.Errorf("transcript was reset by duplicate start: %d messages", len(last.Messages))
	}
}

func TestTurn_MissingSessionKeepsCallAlive(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c := newController(t, p, &fakeStore{})

	res, err := c.Turn(context.Background(), "CA-unknown", "hello")
	if !errors.Is(err, dialog.ErrNoSession) {
		t.Fatalf("err=%v, want ErrNoSession", err)
	}
	if res.Say != dialog.RePrompt {
		t.Errorf("Say=%q, want continuation prompt", res.Say)
	}
	if res.Hangup {
		t.Error("Hangup=true, want call kept alive")
	}
	if p.CallCount() != 0 {
		t.Errorf("interpreter called %d times for unknown session", p.CallCount())
	}
}

func TestTurn_EmptyUtteranceSkipsInterpreter(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	c := newController(t, p, &fakeStore{})
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	for _, utterance := range []string{"", "   ", "\t"} {
		res, err := c.Turn(ctx, "CA1", utterance)
		if err != nil {
			t.Fatalf("Turn(%q): %v", utterance, err)
		}
		if res.Say != dialog.RePrompt {
			t.Errorf("Say=%q, want re-prompt", res.Say)
		}
	}
	if p.CallCount() != 0 {
		t.Errorf("interpreter called %d times on empty turns", p.CallCount())
	}
}

func TestTurn_MonotonicFieldMerge(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []string{
		modelJSON("How many passengers?", `{"name": "Alice"}`),
		// Empty name must not erase Alice; passengers fills in.
		modelJSON("Any luggage?", `{"name": "", "passengers": "2"}`),
		// A correction overwrites.
		modelJSON("Got it, Alison.", `{"name": "Alison"}`),
	}}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	c.Turn(ctx, "CA1", "I'm Alice")
	c.Turn(ctx, "CA1", "two of us")
	c.Turn(ctx, "CA1", "actually it's Alison")

	// Confirm to flush the record to the store and inspect it.
	p.Response = modelJSON("Booked!", `{"confirmed": true}`)
	if _, err := c.Turn(ctx, "CA1", "that's everything"); err != nil {
		t.Fatalf("confirming turn: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("store has %d records, want 1", store.count())
	}
	rec := store.records[0]
	if rec.Name != "Alison" {
		t.Errorf("Name=%q, want correction applied", rec.Name)
	}
	if rec.Passengers != "2" {
		t.Errorf("Passengers=%q, want 2", rec.Passengers)
	}
}

func TestTurn_PhoneImmutable(t *testing.T) {
	t.Parallel()

	// "phone" inside fields is dropped at decode time; the record keeps the
	// transport-supplied number.
	p := &mock.Provider{Responses: []string{
		`{"response": "Done!", "fields": {"name": "Mallory", "phone": "+1999", "confirmed": true}}`,
	}}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	c.Turn(ctx, "CA1", "book it")

	if store.count() != 1 {
		t.Fatalf("store has %d records, want 1", store.count())
	}
	if got := store.records[0].Phone; got != "+44700900123" {
		t.Errorf("Phone=%q, want transport-supplied number", got)
	}
}

func TestTurn_AddressCorrectionRunsEveryTurn(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []string{
		modelJSON("What's the postcode?", `{"pickup": "twelve baker street"}`),
		// Postcode arrives after the pickup; the earlier string must be
		// retroactively corrected on this turn.
		modelJSON("Thanks!", `{"pickup_postcode": "NW1 6XE"}`),
	}}
	store := &fakeStore{}
	c := dialog.New(
		session.NewMemoryStore(),
		interp.New(p),
		newCorrector(t, `["12 Baker Street", "5 Main Road"]`),
		store,
	)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	c.Turn(ctx, "CA1", "pickup from twelve baker street")
	c.Turn(ctx, "CA1", "NW1 6XE")

	p.Response = modelJSON("Booked!", `{"confirmed": true}`)
	c.Turn(ctx, "CA1", "yes please book it")

	if store.count() != 1 {
		t.Fatalf("store has %d records, want 1", store.count())
	}
	if got := store.records[0].Pickup; got != "12 Baker Street" {
		t.Errorf("Pickup=%q, want corrected candidate", got)
	}
}

func TestTurn_ConfirmationSafetyNet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		utterance string
		confirmed bool
	}{
		{"yes", true},
		{"Yeah", true},
		{"  CORRECT  ", true},
		{"yes please", false},
		{"correct, but change the pickup", false},
		{"no", false},
	}

	for _, tt := range tests {
		t.Run(tt.utterance, func(t *testing.T) {
			t.Parallel()

			// Interpreter never sets confirmed; only the safety net can.
			p := &mock.Provider{Response: modelJSON("Is this correct?", `{}`)}
			store := &fakeStore{}
			c := newController(t, p, store)
			ctx := context.Background()

			c.StartCall(ctx, "CA1", "+44700900123")
			res, err := c.Turn(ctx, "CA1", tt.utterance)
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}

			if tt.confirmed {
				if store.count() != 1 {
					t.Errorf("store has %d records, want 1", store.count())
				}
				if res.Say != dialog.SignOff || !res.Hangup {
					t.Errorf("got (%q, hangup=%v), want sign-off and hangup", res.Say, res.Hangup)
				}
			} else {
				if store.count() != 0 {
					t.Errorf("store has %d records, want 0", store.count())
				}
				if res.Hangup {
					t.Error("Hangup=true, want conversation to continue")
				}
			}
		})
	}
}

func TestTurn_PersistsExactlyOnce(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: modelJSON("Booked!", `{"confirmed": true}`)}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	res, err := c.Turn(ctx, "CA1", "confirm the booking")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Say != dialog.SignOff || !res.Hangup {
		t.Fatalf("got (%q, hangup=%v), want sign-off and hangup", res.Say, res.Hangup)
	}

	// A duplicate terminal turn (transport retry) finds no session and must
	// not write a second record.
	if _, err := c.Turn(ctx, "CA1", "confirm the booking"); !errors.Is(err, dialog.ErrNoSession) {
		t.Fatalf("retried terminal turn err=%v, want ErrNoSession", err)
	}
	if store.count() != 1 {
		t.Errorf("store has %d records, want exactly 1", store.count())
	}
}

func TestTurn_StoreFailureRetriesOnce(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: modelJSON("Booked!", `{"confirmed": true}`)}
	store := &fakeStore{failFirst: 1}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	res, err := c.Turn(ctx, "CA1", "yes")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Say != dialog.SignOff {
		t.Errorf("Say=%q, want sign-off after successful retry", res.Say)
	}
	if store.count() != 1 {
		t.Errorf("store has %d records, want 1", store.count())
	}
}

func TestTurn_StoreFailureSurfacedDistinctly(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: modelJSON("Booked!", `{"confirmed": true}`)}
	store := &fakeStore{failFirst: 2}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	res, err := c.Turn(ctx, "CA1", "yes")
	if err == nil {
		t.Fatal("Turn returned nil error after both appends failed")
	}
	if res.Say != dialog.StoreFailure {
		t.Errorf("Say=%q, want store-failure line, not sign-off", res.Say)
	}
	if !res.Hangup {
		t.Error("Hangup=false, want call terminated")
	}

	// The call is over either way; the session must be gone.
	if _, err := c.Turn(ctx, "CA1", "hello?"); !errors.Is(err, dialog.ErrNoSession) {
		t.Errorf("err=%v, want ErrNoSession after teardown", err)
	}
}

func TestTurn_InterpreterFailureKeepsSession(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Err: errors.New("model unavailable")}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	res, err := c.Turn(ctx, "CA1", "I'm Alice")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Say != interp.Apology {
		t.Errorf("Say=%q, want apology", res.Say)
	}
	if res.Hangup {
		t.Error("Hangup=true, want conversation to continue")
	}

	// Next turn still finds the session.
	p.Err = nil
	p.Response = modelJSON("Hi Alice!", `{"name": "Alice"}`)
	if _, err := c.Turn(ctx, "CA1", "I'm Alice"); err != nil {
		t.Fatalf("Turn after recovery: %v", err)
	}
}

func TestTurn_ConcurrentWithSessionSweep(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Response: modelJSON("Anything else?", `{}`)}
	store := &fakeStore{}
	sessions := session.NewMemoryStore(session.WithTTL(time.Hour))
	c := dialog.New(sessions, interp.New(p), newCorrector(t, `[]`), store)
	ctx := context.Background()

	if _, err := c.StartCall(ctx, "CA1", "+44700900123"); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	// The TTL janitor reads activity timestamps while turns refresh them.
	// Running both at once exercises the overlap; the race detector fails
	// this test if either side reads or writes outside the store lock.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, err := c.Turn(ctx, "CA1", "still deciding"); err != nil {
				t.Errorf("Turn during sweep: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			sessions.EvictStale(time.Now().UTC())
		}
	}()
	wg.Wait()

	// With an hour-long TTL the sweeps must not have taken the session.
	if n, err := sessions.Count(ctx); err != nil || n != 1 {
		t.Errorf("Count=(%d, %v), want the session to survive the sweeps", n, err)
	}
}

func TestTurn_ConcurrentTurnsMergeAllFields(t *testing.T) {
	t.Parallel()

	// Six concurrent turns each deliver one distinct field. Turns for one
	// call are serialized, so whatever order they land in, every field must
	// survive the merge.
	p := &mock.Provider{Responses: []string{
		modelJSON("Noted.", `{"name": "Alice"}`),
		modelJSON("Noted.", `{"passengers": "2"}`),
		modelJSON("Noted.", `{"luggage": "20 kg"}`),
		modelJSON("Noted.", `{"child_seats": "1"}`),
		modelJSON("Noted.", `{"wheelchair": "no"}`),
		modelJSON("Noted.", `{"dropoff": "Heathrow Terminal 5"}`),
	}}
	store := &fakeStore{}
	c := newController(t, p, store)
	ctx := context.Background()

	if _, err := c.StartCall(ctx, "CA1", "+44700900123"); err != nil {
		t.Fatalf("StartCall: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Turn(ctx, "CA1", "one more detail"); err != nil {
				t.Errorf("concurrent Turn: %v", err)
			}
		}()
	}
	wg.Wait()

	p.Response = modelJSON("Booked!", `{"confirmed": true}`)
	if _, err := c.Turn(ctx, "CA1", "yes"); err != nil {
		t.Fatalf("confirming turn: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("store has %d records, want exactly 1", store.count())
	}
	rec := store.records[0]
	want := booking.Record{
		Name:       "Alice",
		Passengers: "2",
		Luggage:    "20 kg",
		ChildSeats: "1",
		Wheelchair: "no",
		Dropoff:    "Heathrow Terminal 5",
		Phone:      "+44700900123",
	}
	if rec != want {
		t.Errorf("record=%+v\nwant %+v", rec, want)
	}
}

func TestTurn_FullBookingScenario(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{Responses: []string{
		modelJSON("How many passengers?", `{"name": "Alice"}`),
		modelJSON("Any luggage?", `{"passengers": "2"}`),
		modelJSON("Child seats or wheelchair access?", `{"luggage": "20 kg"}`),
		modelJSON("Where from and to?", `{"child_seats": "0", "wheelchair": "no"}`),
		modelJSON("Thanks! What's the pickup postcode?", `{"pickup": "twelve baker street", "dropoff": "Heathrow Terminal 5"}`),
		modelJSON("Thanks! Pickup: 12 Baker Street. Is this correct?", `{"pickup_postcode": "NW1 6XE"}`),
		modelJSON("You'll receive an SMS confirmation shortly. Have a lovely day!", `{"confirmed": true}`),
	}}
	store := &fakeStore{}
	c := dialog.New(
		session.NewMemoryStore(),
		interp.New(p),
		newCorrector(t, `["12 Baker Street"]`),
		store,
	)
	ctx := context.Background()

	c.StartCall(ctx, "CA1", "+44700900123")
	utterances := []string{
		"I'm Alice",
		"two of us",
		"about twenty kilos",
		"no seats, no wheelchair",
		"from twelve baker street to heathrow terminal five",
		"NW1 6XE",
		"yes",
	}
	var last dialog.Result
	for i, u := range utterances {
		var err error
		last, err = c.Turn(ctx, "CA1", u)
		if err != nil {
			t.Fatalf("turn %d (%q): %v", i, u, err)
		}
	}

	if !last.Hangup || last.Say != dialog.SignOff {
		t.Errorf("final result=(%q, hangup=%v), want sign-off and hangup", last.Say, last.Hangup)
	}
	if store.count() != 1 {
		t.Fatalf("store has %d records, want 1", store.count())
	}
	rec := store.records[0]
	want := booking.Record{
		Name:           "Alice",
		Passengers:     "2",
		Luggage:        "20 kg",
		ChildSeats:     "0",
		Wheelchair:     "no",
		PickupPostcode: "NW1 6XE",
		Pickup:         "12 Baker Street",
		Dropoff:        "Heathrow Terminal 5",
		Phone:          "+44700900123",
	}
	if rec != want {
		t.Errorf("record=%+v\nwant %+v", rec, want)
	}
}
