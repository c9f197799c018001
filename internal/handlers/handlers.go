// Package handlers serves the REST and WebSocket surface. Handlers are
// package-level funcs wired by Init, the way routes register them.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/push"
	"github.com/daijir/scripture-habit/internal/session"
	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/pkg/utils"
)

// SessionStore issues and validates the opaque tokens the sync socket
// connects with.
type SessionStore interface {
	auth.Sessions
	Create(ctx context.Context, userID string) (string, error)
	Refresh(ctx context.Context, token string) error
	Invalidate(ctx context.Context, token string) error
	InvalidateUser(ctx context.Context, userID string) error
}

// SideService is the part of the side service proxied to clients.
type SideService interface {
	WeeklyRecap(ctx context.Context, tokens sidesvc.TokenSource, groupID, language string) (sidesvc.Recap, error)
	LinkPreview(ctx context.Context, target string) (sidesvc.LinkPreview, error)
	GenerateQuestions(ctx context.Context, tokens sidesvc.TokenSource, req sidesvc.QuestionRequest) ([]string, error)
	Translate(ctx context.Context, tokens sidesvc.TokenSource, text, target string) (string, error)
}

// Deps are the services handlers use.
type Deps struct {
	Store    store.Store
	KV       kv.Store
	Coord    *mutation.Coordinator
	Side     SideService
	Tokens   *auth.TokenService
	Sessions SessionStore
	Push     *push.Service
	Session  session.Options
	// AllowedOrigins restricts sync socket origins; empty allows any.
	AllowedOrigins []string
}

var deps Deps

// Init wires handler dependencies. Call before serving.
func Init(d Deps) {
	deps = d
}

// Response is the envelope every JSON reply uses.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *utils.ValidationError
	var se *sidesvc.Error
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: ve.Message, Field: ve.Field})
	case errors.Is(err, mutation.ErrNotAuthor), errors.Is(err, mutation.ErrNotOwner),
		errors.Is(err, mutation.ErrNotMember), errors.Is(err, mutation.ErrSystemEdit),
		errors.Is(err, store.ErrPermissionDenied):
		writeFail(w, http.StatusForbidden, userMessage(err))
	case errors.Is(err, mutation.ErrNoProfile), errors.Is(err, mutation.ErrNoMessage),
		errors.Is(err, mutation.ErrNoNote), errors.Is(err, store.ErrNotFound):
		writeFail(w, http.StatusNotFound, userMessage(err))
	case errors.As(err, &se):
		status := se.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeFail(w, status, se.Message)
	case errors.Is(err, store.ErrResourceExhausted):
		writeFail(w, http.StatusServiceUnavailable, "Service is over capacity. Please try again later.")
	case errors.Is(err, store.ErrAborted):
		writeFail(w, http.StatusConflict, "The document changed concurrently. Please retry.")
	default:
		log.Printf("handlers: %s %s: %v", r.Method, r.URL.Path, err)
		writeFail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, mutation.ErrNotAuthor):
		return "Only the author can change this message"
	case errors.Is(err, mutation.ErrNotOwner):
		return "Only the group owner can do this"
	case errors.Is(err, mutation.ErrNotMember):
		return "You are not a member of this group"
	case errors.Is(err, mutation.ErrSystemEdit):
		return "System messages cannot be changed"
	case errors.Is(err, mutation.ErrNoProfile):
		return "Profile not found"
	case errors.Is(err, mutation.ErrNoMessage):
		return "Message not found"
	case errors.Is(err, mutation.ErrNoNote):
		return "Note not found"
	case errors.Is(err, store.ErrPermissionDenied):
		return "Permission denied"
	}
	return "Not found"
}

// decode reads a JSON body into dst, replying 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// bearerSource forwards the caller's own id token to the side service.
type bearerSource string

func (b bearerSource) IDToken(ctx context.Context) (string, error) {
	if b == "" {
		return "", auth.ErrSignedOut
	}
	return string(b), nil
}

func callerTokens(r *http.Request) sidesvc.TokenSource {
	return bearerSource(middleware.BearerToken(r.Header.Get("Authorization")))
}

// actor loads the caller's profile identity, replying on failure.
func actor(w http.ResponseWriter, r *http.Request) (mutation.Actor, bool) {
	a, err := deps.Coord.ActorFor(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return mutation.Actor{}, false
	}
	return a, true
}
