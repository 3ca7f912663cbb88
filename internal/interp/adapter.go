package interp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ridelinehq/dispatchd/internal/booking"
	"github.com/ridelinehq/dispatchd/internal/observe"
	"github.com/ridelinehq/dispatchd/internal/resilience"
	"github.com/ridelinehq/dispatchd/internal/session"
)

const defaultTimeout = 15 * time.Second

// Reply is the interpreter's parsed output for one caller turn.
type Reply struct {
	// Text is what the agent speaks back to the caller.
	Text string

	// Fields are the booking field suggestions extracted from the turn.
	// Empty when the interpreter failed.
	Fields booking.Suggestions
}

// modelReply mirrors the JSON document the task prompt demands.
type modelReply struct {
	Response string              `json:"response"`
	Fields   booking.Suggestions `json:"fields"`
}

// Option is a functional option for configuring an [Adapter].
type Option func(*Adapter)

// WithTimeout bounds a single interpreter round trip. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.timeout = d
	}
}

// WithBreaker wraps provider calls in a circuit breaker so a failing model
// backend is rejected fast instead of timing out every turn.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(a *Adapter) {
		a.breaker = cb
	}
}

// WithMetrics attaches a metrics instance; when nil, requests are not counted.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// Adapter drives the conversation with the model and keeps the session
// transcript consistent with what the model has seen. It is stateless across
// calls (all conversational state lives in the session) and safe for
// concurrent use over distinct sessions.
type Adapter struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	timeout  time.Duration
}

// New creates an Adapter over the given provider.
func New(p Provider, opts ...Option) *Adapter {
	a := &Adapter{
		provider: p,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Interpret sends the caller's utterance, in the context of the session
// transcript so far, to the model and returns the parsed reply.
//
// The utterance is appended to the transcript before the request so the
// model always sees it; the agent turn appended afterwards is the model's
// raw JSON on success, or [Apology] on failure, so the transcript stays an
// accurate record of what the model produced and what the caller heard.
// Interpret never returns a partial result: on any failure the reply is the
// apology with zero field suggestions.
func (a *Adapter) Interpret(ctx context.Context, sess *session.Session, utterance string) Reply {
	sess.Append(session.RoleCaller, utterance)

	start := time.Now()
	raw, err := a.complete(ctx, sess)
	if a.metrics != nil {
		a.metrics.InterpreterDuration.Record(ctx, time.Since(start).Seconds())
	}

	var parsed modelReply
	if err == nil {
		err = parseModelReply(raw, &parsed)
	}
	if err != nil || parsed.Response == "" {
		if err == nil {
			err = fmt.Errorf("interp: model reply has no response text")
		}
		observe.Logger(ctx).Error("interpreter turn failed",
			"call_id", sess.CallID, "err", err)
		a.record(ctx, statusFor(err))

		sess.Append(session.RoleAgent, Apology)
		return Reply{Text: Apology, Fields: booking.Suggestions{}}
	}

	a.record(ctx, "ok")
	sess.Append(session.RoleAgent, raw)
	return Reply{Text: parsed.Response, Fields: parsed.Fields}
}

// complete performs the provider round trip under the configured timeout and
// circuit breaker.
func (a *Adapter) complete(ctx context.Context, sess *session.Session) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	msgs := make([]Message, 0, len(sess.Transcript))
	for _, turn := range sess.Transcript {
		role := RoleUser
		if turn.Role == session.RoleAgent {
			role = RoleAssistant
		}
		msgs = append(msgs, Message{Role: role, Content: turn.Text})
	}

	var raw string
	call := func() error {
		var err error
		raw, err = a.provider.Complete(ctx, taskPrompt, msgs)
		return err
	}
	var err error
	if a.breaker != nil {
		err = a.breaker.Execute(call)
	} else {
		err = call()
	}
	return raw, err
}

// parseModelReply decodes the model output into out. Models occasionally
// wrap the JSON in a Markdown code fence or surround it with prose, so the
// document is cut out between the first "{" and the last "}" before
// decoding.
func parseModelReply(raw string, out *modelReply) error {
	doc := strings.TrimSpace(raw)
	if i := strings.Index(doc, "{"); i >= 0 {
		doc = doc[i:]
	}
	if i := strings.LastIndex(doc, "}"); i >= 0 {
		doc = doc[:i+1]
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("interp: parse model reply: %w", err)
	}
	return nil
}

func statusFor(err error) string {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "rejected"
	}
	return "error"
}

func (a *Adapter) record(ctx context.Context, status string) {
	if a.metrics != nil {
		a.metrics.RecordInterpreterRequest(ctx, status)
	}
}
