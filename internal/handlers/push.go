package handlers

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/push"
)

var bannerNamePattern = regexp.MustCompile(`^[a-z0-9_-]{1,40}$`)

// PushStatusResponse tells the client whether to show the permission prompt
type PushStatusResponse struct {
	Success      bool            `json:"success"`
	Permission   push.Permission `json:"permission"`
	ShouldPrompt bool            `json:"should_prompt"`
}

// PushPermissionRequest is the outcome of a permission prompt
type PushPermissionRequest struct {
	Permission  push.Permission `json:"permission"`
	DeviceToken string          `json:"device_token,omitempty"`
}

// BannerResponse reports whether a banner was dismissed
type BannerResponse struct {
	Success   bool `json:"success"`
	Dismissed bool `json:"dismissed"`
}

// GetPushStatus returns the stored permission and prompt eligibility
func GetPushStatus(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	writeJSON(w, http.StatusOK, PushStatusResponse{
		Success:      true,
		Permission:   deps.Push.Permission(r.Context(), uid),
		ShouldPrompt: deps.Push.ShouldPrompt(r.Context(), uid),
	})
}

// SetPushPermission records a prompt outcome and registers the device
func SetPushPermission(w http.ResponseWriter, r *http.Request) {
	var req PushPermissionRequest
	if !decode(w, r, &req) {
		return
	}
	uid := middleware.UserID(r.Context())
	p, err := deps.Push.RequestPermission(r.Context(), uid, req.Permission, req.DeviceToken, r.UserAgent())
	if errors.Is(err, push.ErrMissingToken) {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Device token is required", Field: "device_token"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PushStatusResponse{Success: true, Permission: p})
}

// MarkPushPrompted starts the prompt cool-down
func MarkPushPrompted(w http.ResponseWriter, r *http.Request) {
	if err := deps.Push.MarkPrompted(r.Context(), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// RevokePush unregisters every device of the caller
func RevokePush(w http.ResponseWriter, r *http.Request) {
	if err := deps.Push.Revoke(r.Context(), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Notifications disabled"})
}

// GetBanner reports whether the caller dismissed a banner
func GetBanner(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "banner")
	if !bannerNamePattern.MatchString(name) {
		writeFail(w, http.StatusBadRequest, "Invalid banner name")
		return
	}
	dismissed := kv.BannerDismissed(r.Context(), deps.KV, middleware.UserID(r.Context()), name)
	writeJSON(w, http.StatusOK, BannerResponse{Success: true, Dismissed: dismissed})
}

// DismissBanner hides a banner for the caller for good
func DismissBanner(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "banner")
	if !bannerNamePattern.MatchString(name) {
		writeFail(w, http.StatusBadRequest, "Invalid banner name")
		return
	}
	if err := kv.DismissBanner(r.Context(), deps.KV, middleware.UserID(r.Context()), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BannerResponse{Success: true, Dismissed: true})
}
