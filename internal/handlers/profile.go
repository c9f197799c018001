package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daijir/scripture-habit/internal/derived"
	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/store"
)

// now is the clock for one-shot dashboards.
var now = time.Now

// CreateSessionRequest is sent once per sign-in. Profile fields are used
// only when the profile does not exist yet.
type CreateSessionRequest struct {
	Nickname string `json:"nickname"`
	Timezone string `json:"timezone"`
	Language string `json:"language"`
}

// CreateSessionResponse carries the token for the sync socket.
type CreateSessionResponse struct {
	Success      bool               `json:"success"`
	Message      string             `json:"message"`
	SessionToken string             `json:"session_token,omitempty"`
	Profile      models.UserProfile `json:"profile"`
}

// ProfileResponse wraps a profile.
type ProfileResponse struct {
	Success bool               `json:"success"`
	Profile models.UserProfile `json:"profile"`
}

// DashboardResponse wraps a dashboard.
type DashboardResponse struct {
	Success   bool              `json:"success"`
	Dashboard derived.Dashboard `json:"dashboard"`
}

// CreateSession ensures the caller's profile and issues a sync session.
func CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decode(w, r, &req) {
		return
	}
	uid := middleware.UserID(r.Context())
	p, err := deps.Coord.EnsureProfile(r.Context(), uid, req.Nickname, req.Timezone, req.Language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := deps.Sessions.Create(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CreateSessionResponse{
		Success:      true,
		Message:      "Signed in",
		SessionToken: token,
		Profile:      p,
	})
}

// DeleteSession signs the caller out of the sync socket.
func DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := deps.Sessions.InvalidateUser(r.Context(), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Signed out"})
}

// GetProfile returns the caller's profile.
func GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := deps.Coord.Profile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{Success: true, Profile: p})
}

// UpdateProfileRequest holds optional profile edits.
type UpdateProfileRequest struct {
	Nickname *string `json:"nickname,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
	Language *string `json:"language,omitempty"`
}

// UpdateProfile edits nickname, timezone or language.
func UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}
	uid := middleware.UserID(r.Context())
	err := deps.Coord.UpdateProfile(r.Context(), uid, mutation.ProfileUpdate{
		Nickname: req.Nickname,
		Timezone: req.Timezone,
		Language: req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	GetProfile(w, r)
}

// DeleteAccount leaves every group, deletes the profile and ends sessions.
func DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	if err := deps.Coord.DeleteAccount(r.Context(), uid, callerTokens(r)); err != nil {
		writeError(w, r, err)
		return
	}
	if err := deps.Sessions.InvalidateUser(r.Context(), uid); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Account deleted"})
}

// GetDashboard computes the dashboard from one read of each stream, for
// clients that poll instead of holding the sync socket.
func GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := middleware.UserID(ctx)
	p, err := deps.Coord.Profile(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec := derived.NewReconciler()
	rec.SetProfile(p)

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for _, gid := range p.GroupIDs {
		gid := gid
		eg.Go(func() error {
			doc, err := deps.Store.Get(egCtx, store.GroupPath(gid))
			if errors.Is(err, store.ErrPermissionDenied) {
				return nil
			}
			if err != nil {
				return err
			}
			g := models.DecodeGroup(doc)
			g.ID = gid
			mu.Lock()
			rec.SetGroup(g)
			mu.Unlock()
			return nil
		})
	}
	var states []models.ReadState
	eg.Go(func() error {
		snap, err := deps.Store.Query(egCtx, store.Query{Collection: store.ReadStatesPath(uid)})
		if errors.Is(err, store.ErrPermissionDenied) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, doc := range snap.Docs {
			states = append(states, models.DecodeReadState(doc))
		}
		mu.Lock()
		rec.SetReadStates(states)
		mu.Unlock()
		return nil
	})
	if err := eg.Wait(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardResponse{Success: true, Dashboard: rec.Dashboard(now())})
}
