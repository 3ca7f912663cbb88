// Package gateway exposes the dialogue controller over HTTP to the call
// transport. It speaks the Twilio voice-webhook dialect: the transport posts
// form-encoded call events and receives TwiML documents telling it what to
// say and whether to keep listening.
//
// Endpoints:
//
//   - POST /voice          — call start (CallSid, From)
//   - POST /voice/continue — one caller turn (CallSid, SpeechResult)
//   - GET  /healthz        — liveness
//   - GET  /readyz         — readiness
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ridelinehq/dispatchd/internal/dialog"
	"github.com/ridelinehq/dispatchd/internal/health"
	"github.com/ridelinehq/dispatchd/internal/observe"
)

// Server routes transport webhooks to the dialogue controller.
type Server struct {
	router chi.Router
	ctrl   *dialog.Controller
}

// NewServer builds the HTTP surface over ctrl. hc provides the readiness
// checkers; m instruments every request.
func NewServer(ctrl *dialog.Controller, hc *health.Handler, m *observe.Metrics) *Server {
	s := &Server{
		router: chi.NewRouter(),
		ctrl:   ctrl,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(observe.Middleware(m))

	s.router.Post("/voice", s.handleVoice)
	s.router.Post(continuePath, s.handleContinue)
	s.router.Get("/healthz", hc.Healthz)
	s.router.Get("/readyz", hc.Readyz)

	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleVoice starts a call session and greets the caller.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	phone := r.PostFormValue("From")
	if phone == "" {
		phone = "Unknown"
	}

	res, err := s.ctrl.StartCall(r.Context(), callID, phone)
	if err != nil {
		observe.Logger(r.Context()).Error("start call", "call_id", callID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.respond(w, r, res)
}

// handleContinue processes one caller turn. Controller errors still carry a
// spoken line, so the call is answered even when the turn failed — the error
// is logged, not surfaced to the transport.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callID := r.PostFormValue("CallSid")
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}

	res, err := s.ctrl.Turn(r.Context(), callID, r.PostFormValue("SpeechResult"))
	if err != nil {
		observe.Logger(r.Context()).Warn("turn completed with error", "call_id", callID, "err", err)
	}
	s.respond(w, r, res)
}

// respond renders the controller result as TwiML.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, res dialog.Result) {
	var (
		body []byte
		err  error
	)
	if res.Hangup {
		body, err = hangupTwiML(res.Say)
	} else {
		body, err = promptTwiML(res.Say)
	}
	if err != nil {
		observe.Logger(r.Context()).Error("render twiml", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
