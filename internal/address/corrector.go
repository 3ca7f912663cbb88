// Package address corrects spoken pickup addresses against a postcode
// lookup service (postcodes.io-compatible).
//
// Given the address string as recognised from speech and the postcode the
// caller supplied, the corrector fetches the address candidates
// autocompleting under that postcode and replaces the spoken string with the
// closest candidate by normalised edit similarity — but only when the match
// clears a confidence threshold. Every failure mode (network error, non-2xx
// status, malformed body, no candidate above threshold) falls back to the
// spoken string unchanged, so correction can never make a turn fail.
package address

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/ridelinehq/dispatchd/internal/observe"
)

const (
	// defaultMinSimilarity mirrors the cutoff dispatch operators tuned for
	// UK-style street addresses: below 0.6 the candidate list is more likely
	// to mislead than help.
	defaultMinSimilarity = 0.6

	defaultTimeout = 5 * time.Second
)

// Option is a functional option for configuring a [Corrector].
type Option func(*Corrector)

// WithHTTPClient overrides the HTTP client used for lookups.
func WithHTTPClient(c *http.Client) Option {
	return func(ac *Corrector) {
		ac.client = c
	}
}

// WithMinSimilarity sets the minimum normalised edit similarity in (0, 1]
// required to accept a candidate. Default: 0.6.
func WithMinSimilarity(min float64) Option {
	return func(ac *Corrector) {
		ac.minSimilarity = min
	}
}

// WithTimeout bounds each lookup round trip. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(ac *Corrector) {
		ac.timeout = d
	}
}

// WithMetrics attaches a metrics instance; when nil, lookups are not counted.
func WithMetrics(m *observe.Metrics) Option {
	return func(ac *Corrector) {
		ac.metrics = m
	}
}

// Corrector resolves spoken addresses against the address index. It is
// read-only after construction and safe for concurrent use. Correct never
// mutates anything beyond its own HTTP round trip, and for a fixed index
// response it is deterministic and idempotent.
type Corrector struct {
	baseURL       string
	client        *http.Client
	minSimilarity float64
	timeout       time.Duration
	metrics       *observe.Metrics
}

// New creates a Corrector querying the address index at baseURL (e.g.
// "https://api.postcodes.io").
func New(baseURL string, opts ...Option) *Corrector {
	ac := &Corrector{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		minSimilarity: defaultMinSimilarity,
		timeout:       defaultTimeout,
	}
	for _, o := range opts {
		o(ac)
	}
	return ac
}

// Correct returns the index candidate for postcode most similar to spoken,
// or spoken unchanged when the lookup fails or no candidate is similar
// enough.
func (ac *Corrector) Correct(ctx context.Context, spoken, postcode string) string {
	start := time.Now()
	candidates, err := ac.lookup(ctx, postcode)
	if ac.metrics != nil {
		ac.metrics.AddressLookupDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		observe.Logger(ctx).Warn("address lookup failed; keeping spoken address",
			"postcode", postcode, "err", err)
		ac.record(ctx, "error")
		return spoken
	}

	best, score := closestMatch(spoken, candidates)
	if best == "" || score < ac.minSimilarity {
		ac.record(ctx, "unmatched")
		return spoken
	}
	ac.record(ctx, "corrected")
	return best
}

// lookup fetches the candidate addresses autocompleting under postcode.
func (ac *Corrector) lookup(ctx context.Context, postcode string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ac.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/postcodes/%s/autocomplete", ac.baseURL, url.PathEscape(postcode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("address: build request: %w", err)
	}

	resp, err := ac.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("address: lookup %q: %w", postcode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("address: lookup %q: status %d", postcode, resp.StatusCode)
	}

	var body struct {
		Result []string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("address: decode response: %w", err)
	}
	return body.Result, nil
}

// closestMatch returns the candidate with the highest similarity to spoken
// and its score. Returns ("", 0) for an empty candidate set.
func closestMatch(spoken string, candidates []string) (string, float64) {
	var (
		best      string
		bestScore float64
	)
	for _, c := range candidates {
		if s := Similarity(spoken, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// Similarity computes a normalised edit similarity between a and b in
// [0, 1]: 1 minus the Levenshtein distance divided by the longer length.
// Comparison is case-insensitive; identical strings score 1.
func Similarity(a, b string) float64 {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return 1
	}
	longest := max(len([]rune(la)), len([]rune(lb)))
	if longest == 0 {
		return 1
	}
	dist := matchr.Levenshtein(la, lb)
	return 1 - float64(dist)/float64(longest)
}

func (ac *Corrector) record(ctx context.Context, outcome string) {
	if ac.metrics != nil {
		ac.metrics.RecordAddressLookup(ctx, outcome)
	}
}
