// Package mock provides a test double for the interp.Provider interface.
//
// Use Provider in unit tests to feed controlled model replies without a live
// backend and to verify what the adapter sent. Zero values for response
// fields cause Complete to return "" with a nil error; set Err to inject
// failures.
//
// Example:
//
//	p := &mock.Provider{Response: `{"response": "Hello!", "fields": {}}`}
//	reply := interp.New(p).Interpret(ctx, sess, "hi")
package mock

import (
	"context"
	"sync"

	"github.com/ridelinehq/dispatchd/internal/interp"
)

// Call records a single invocation of Complete.
type Call struct {
	// System is the system prompt passed to Complete.
	System string
	// Messages is the conversation passed to Complete.
	Messages []interp.Message
}

// Provider is a mock implementation of interp.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Complete when Responses is empty.
	Response string

	// Responses, when non-empty, is consumed one element per Complete call;
	// after exhaustion Complete falls back to Response.
	Responses []string

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []Call
}

var _ interp.Provider = (*Provider)(nil)

// Complete implements interp.Provider.
func (p *Provider) Complete(_ context.Context, system string, msgs []interp.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := make([]interp.Message, len(msgs))
	copy(copied, msgs)
	p.Calls = append(p.Calls, Call{System: system, Messages: copied})

	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) > 0 {
		r := p.Responses[0]
		p.Responses = p.Responses[1:]
		return r, nil
	}
	return p.Response, nil
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
