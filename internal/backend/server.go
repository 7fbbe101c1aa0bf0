// Package backend is a small reference server for the notification read
// model and push channel. It persists notifications in SQLite or Postgres,
// serves the REST endpoints the gateway calls, and pushes new records to
// registered WebSocket connections.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

// Server wires the database and the push hub behind a chi router.
type Server struct {
	db     *DB
	hub    *Hub
	secret []byte
	log    zerolog.Logger
	now    func() time.Time
}

// NewServer creates a server that signs and verifies tokens with secret.
func NewServer(db *DB, secret []byte, log zerolog.Logger) *Server {
	return &Server{
		db:     db,
		hub:    NewHub(log),
		secret: secret,
		log:    log.With().Str("component", "backend").Logger(),
		now:    time.Now,
	}
}

// Hub returns the server's push hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Routes returns the HTTP handler serving the REST API under /api and the
// push channel at /ws.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("elapsed", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, "ok", nil)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/ws", s.handleWS)

		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/user/{userId}", s.handleList)
			r.Patch("/read/{id}", s.handleMarkRead)
			r.Patch("/read-all", s.handleMarkAllRead)
			r.Post("/send", s.handleSend)
		})
	})

	return r
}

// userBody is the body of the read-state mutations.
type userBody struct {
	UserID string `json:"userId"`
}

// callerMatches enforces that the authenticated user acts only on their
// own notifications.
func callerMatches(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller, _ := UserIDFrom(r.Context())
	if userID == "" {
		fail(w, http.StatusBadRequest, "userId is required")
		return false
	}
	if userID != caller {
		fail(w, http.StatusForbidden, "Cannot access another user's notifications")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// handleList handles GET /api/notifications/user/{userId}.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !callerMatches(w, r, userID) {
		return
	}

	records, err := s.db.ListForUser(r.Context(), userID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("listing notifications")
		fail(w, http.StatusInternalServerError, "Failed to list notifications")
		return
	}

	respond(w, http.StatusOK, "", records)
}

// handleMarkRead handles PATCH /api/notifications/read/{id}.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if !decodeBody(w, r, &body) || !callerMatches(w, r, body.UserID) {
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.db.MarkRead(r.Context(), id, body.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			fail(w, http.StatusNotFound, "Notification not found")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("id", id).Msg("marking read")
		fail(w, http.StatusInternalServerError, "Failed to mark notification as read")
		return
	}

	respond(w, http.StatusOK, "Notification marked as read", nil)
}

// handleMarkAllRead handles PATCH /api/notifications/read-all.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	var body userBody
	if !decodeBody(w, r, &body) || !callerMatches(w, r, body.UserID) {
		return
	}

	n, err := s.db.MarkAllRead(r.Context(), body.UserID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("marking all read")
		fail(w, http.StatusInternalServerError, "Failed to mark all notifications as read")
		return
	}

	respond(w, http.StatusOK, "All notifications marked as read", map[string]int64{"updated": n})
}

// handleSend handles POST /api/notifications/send. The authenticated user
// is always the sender.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req gateway.SendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		fail(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Kind == "" {
		req.Kind = model.KindInfo
	}
	if !req.Kind.Valid() {
		fail(w, http.StatusBadRequest, fmt.Sprintf("unknown type %q", req.Kind))
		return
	}

	ctx := r.Context()
	callerID, _ := UserIDFrom(ctx)
	sender, err := s.db.GetUser(ctx, callerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			fail(w, http.StatusForbidden, "Unknown sender")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("loading sender")
		fail(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}

	recipients, err := s.db.Recipients(ctx, req.Role, req.Email, req.UserID)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(recipients) == 0 {
		fail(w, http.StatusNotFound, "No matching recipients")
		return
	}

	deliveries, err := s.db.CreateForRecipients(ctx, &sender, recipients, Draft{
		Title:   req.Title,
		Message: strings.TrimSpace(req.Message),
		Kind:    req.Kind,
		Meta:    req.Meta,
	}, s.now())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("creating notifications")
		fail(w, http.StatusInternalServerError, "Failed to send notification")
		return
	}

	pushed := 0
	for _, d := range deliveries {
		pushed += s.hub.Publish(d.RecipientID, d.Notification)
	}
	hlog.FromRequest(r).Info().
		Str("sender", sender.ID).
		Int("recipients", len(deliveries)).
		Int("pushed", pushed).
		Msg("notification sent")

	respond(w, http.StatusCreated,
		fmt.Sprintf("Notification sent to %d recipient(s)", len(deliveries)),
		map[string]int{"recipients": len(deliveries)})
}

// handleWS upgrades GET /ws to the push channel.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	s.hub.Serve(w, r, userID)
}
