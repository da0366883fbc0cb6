// Package api exposes the gateway's REST surface. Every route except
// health requires authentication.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pborman/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mqy/sigview/auth"
	"github.com/mqy/sigview/relay"
	"github.com/mqy/sigview/view"
)

var requestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sigview_http_requests_total",
		Help: "Inbound API requests by handler and status code.",
	},
	[]string{"handler", "code"},
)

func init() {
	prometheus.MustRegister(requestsTotal)
}

// Server holds the request handlers.
type Server struct {
	engine *view.Engine
	relay  relay.Client
	auth   auth.Client
}

func NewServer(engine *view.Engine, rc relay.Client, ac auth.Client) *Server {
	return &Server{engine: engine, relay: rc, auth: ac}
}

// Register installs all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/conversations", s.authed("conversations", http.MethodGet, s.handleConversations))
	mux.HandleFunc("/api/groups", s.authed("groups", http.MethodGet, s.handleGroups))
	mux.HandleFunc("/api/messages", s.authed("messages", http.MethodGet, s.handleMessages))
	mux.HandleFunc("/api/messages/", s.authed("message_detail", http.MethodGet, s.handleMessageDetail))
	mux.HandleFunc("/api/send", s.authed("send", http.MethodPost, s.handleSend))
	mux.HandleFunc("/api/stats", s.authed("stats", http.MethodGet, s.handleStats))
	mux.HandleFunc("/api/profile", s.authed("profile", http.MethodGet, s.handleProfile))
	mux.HandleFunc("/api/contact/profile", s.authed("contact_profile", http.MethodGet, s.handleContactProfile))
	mux.HandleFunc("/api/health", s.open("health", http.MethodGet, s.handleHealth))
}

// handlerFunc is an authenticated handler; user is the caller's username.
type handlerFunc func(w *responseWriter, r *http.Request, user string)

// authed wraps h with request id generation, authentication, method check
// and request metrics.
func (s *Server) authed(name, method string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := s.begin(name, method, w, r)
		if rw == nil {
			return
		}
		defer rw.count(name)

		user, err := s.auth.Auth(r)
		if err != nil {
			glog.Warningf("api: %s %s rid=%s: auth failed: %v", r.Method, r.URL.Path, rw.rid, err)
			rw.writeError(http.StatusUnauthorized, "authentication required")
			return
		}
		h(rw, r, user)
	}
}

// open is authed without the auth step.
func (s *Server) open(name, method string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rw := s.begin(name, method, w, r)
		if rw == nil {
			return
		}
		defer rw.count(name)
		h(rw, r, "")
	}
}

func (s *Server) begin(name, method string, w http.ResponseWriter, r *http.Request) *responseWriter {
	rid := uuid.NewRandom().String()
	glog.V(2).Infof("api: %s %s rid=%s", r.Method, r.URL.Path, rid)

	rw := &responseWriter{ResponseWriter: w, rid: rid, status: http.StatusOK}
	if r.Method != method {
		rw.writeError(http.StatusMethodNotAllowed, "method not allowed")
		rw.count(name)
		return nil
	}
	return rw
}

// GET /api/conversations
func (s *Server) handleConversations(w *responseWriter, r *http.Request, user string) {
	convs, err := s.engine.Conversations(r.Context())
	if err != nil {
		glog.Errorf("api: conversations rid=%s: %v", w.rid, err)
		w.writeRelayError(err)
		return
	}
	w.writeJSON(http.StatusOK, map[string]interface{}{"conversations": convs})
}

// GET /api/groups
func (s *Server) handleGroups(w *responseWriter, r *http.Request, user string) {
	groups, err := s.relay.ListGroups(r.Context())
	if err != nil {
		glog.Errorf("api: groups rid=%s: %v", w.rid, err)
		w.writeRelayError(err)
		return
	}
	if groups == nil {
		groups = []relay.Conversation{}
	}
	w.writeJSON(http.StatusOK, map[string]interface{}{"conversations": groups})
}

// GET /api/messages?contact=|sender=|group_id=
//
// The contact parameter triggers the aggregation engine; sender/group_id
// pass straight through to the relay.
func (s *Server) handleMessages(w *responseWriter, r *http.Request, user string) {
	var msgs []relay.Message
	var err error

	if contact := r.URL.Query().Get("contact"); contact != "" {
		msgs, err = s.engine.History(r.Context(), contact)
	} else {
		msgs, err = s.relay.ListMessages(r.Context(), relay.Filter{
			Sender:  r.URL.Query().Get("sender"),
			GroupID: r.URL.Query().Get("group_id"),
		})
	}
	if err != nil {
		glog.Errorf("api: messages rid=%s: %v", w.rid, err)
		w.writeRelayError(err)
		return
	}
	if msgs == nil {
		msgs = []relay.Message{}
	}
	w.writeJSON(http.StatusOK, map[string]interface{}{"messages": msgs})
}

// GET /api/messages/{id}
func (s *Server) handleMessageDetail(w *responseWriter, r *http.Request, user string) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/messages/"), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		w.writeError(http.StatusBadRequest, "invalid message id")
		return
	}

	msg, err := s.relay.GetMessage(r.Context(), id)
	if err != nil {
		glog.Errorf("api: message %d rid=%s: %v", id, w.rid, err)
		w.writeRelayError(err)
		return
	}
	w.writeJSON(http.StatusOK, msg)
}

// POST /api/send
func (s *Server) handleSend(w *responseWriter, r *http.Request, user string) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.writeError(http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.Message == "" {
		w.writeError(http.StatusBadRequest, "both 'to' and 'message' fields are required")
		return
	}

	msg, err := s.relay.SendMessage(r.Context(), req.To, req.Message)
	if err != nil {
		glog.Errorf("api: send to=%q rid=%s: %v", req.To, w.rid, err)
		w.writeRelayError(err)
		return
	}
	glog.V(2).Infof("api: send to=%q rid=%s: user=%s ok", req.To, w.rid, user)
	w.writeJSON(http.StatusCreated, msg)
}

// GET /api/stats
func (s *Server) handleStats(w *responseWriter, r *http.Request, user string) {
	stats, err := s.relay.GetStats(r.Context())
	if err != nil {
		glog.Errorf("api: stats rid=%s: %v", w.rid, err)
		w.writeRelayError(err)
		return
	}
	w.writeJSON(http.StatusOK, stats)
}

// GET /api/health, unauthenticated. An unreachable relay is reported in
// the payload, not the status code, so "gateway up, relay down" stays
// distinguishable from "gateway down".
func (s *Server) handleHealth(w *responseWriter, r *http.Request, user string) {
	h, err := s.relay.Health(r.Context())
	if err != nil {
		glog.Warningf("api: health rid=%s: %v", w.rid, err)
		h = &relay.Health{Status: "error", Message: "cannot reach relay"}
	}
	w.writeJSON(http.StatusOK, h)
}

// GET /api/profile
func (s *Server) handleProfile(w *responseWriter, r *http.Request, user string) {
	w.writeJSON(http.StatusOK, map[string]string{"username": user})
}

// GET /api/contact/profile?contact=
func (s *Server) handleContactProfile(w *responseWriter, r *http.Request, user string) {
	contact := r.URL.Query().Get("contact")
	if contact == "" {
		w.writeError(http.StatusBadRequest, "contact parameter is required")
		return
	}

	profile, err := s.engine.Profile(r.Context(), contact)
	if err != nil {
		glog.Errorf("api: contact profile %q rid=%s: %v", contact, w.rid, err)
		w.writeRelayError(err)
		return
	}
	w.writeJSON(http.StatusOK, profile)
}

// responseWriter records the status code for metrics and carries the
// request id.
type responseWriter struct {
	http.ResponseWriter
	rid    string
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) count(handler string) {
	requestsTotal.WithLabelValues(handler, strconv.Itoa(w.status)).Inc()
}

func (w *responseWriter) writeJSON(code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Errorf("api: rid=%s: write response: %v", w.rid, err)
	}
}

func (w *responseWriter) writeError(code int, msg string) {
	w.writeJSON(code, map[string]string{"error": msg})
}

func (w *responseWriter) writeRelayError(err error) {
	switch {
	case errors.Is(err, relay.ErrNotFound):
		w.writeError(http.StatusNotFound, "message not found")
	case errors.Is(err, relay.ErrUnavailable):
		w.writeError(http.StatusBadGateway, "relay unavailable")
	default:
		w.writeError(http.StatusInternalServerError, "internal error")
	}
}
