package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/sidesvc"
)

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// GroupResponse represents a group after creation
type GroupResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Group   models.Group `json:"group"`
}

// JoinGroupRequest carries an invite code
type JoinGroupRequest struct {
	InviteCode string `json:"invite_code"`
}

// JoinGroupResponse represents the response for joining a group
type JoinGroupResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Group   sidesvc.JoinResult `json:"group"`
}

// RecapResponse wraps a generated weekly recap
type RecapResponse struct {
	Success bool          `json:"success"`
	Recap   sidesvc.Recap `json:"recap"`
}

// CreateGroup handles creating a new group owned by the caller
func CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := actor(w, r)
	if !ok {
		return
	}
	g, err := deps.Coord.CreateGroup(r.Context(), a, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupResponse{Success: true, Message: "Group created", Group: g})
}

// JoinGroup joins a group by invite code
func JoinGroup(w http.ResponseWriter, r *http.Request) {
	var req JoinGroupRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := actor(w, r)
	if !ok {
		return
	}
	res, err := deps.Coord.JoinGroup(r.Context(), a, callerTokens(r), req.InviteCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JoinGroupResponse{Success: true, Message: "Joined group", Group: res})
}

// LeaveGroup removes the caller from a group
func LeaveGroup(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := deps.Coord.LeaveGroup(r.Context(), a, callerTokens(r), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Left group"})
}

// DeleteGroup deletes a group the caller owns
func DeleteGroup(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if err := deps.Coord.DeleteGroup(r.Context(), a, callerTokens(r), chi.URLParam(r, "groupID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Group deleted"})
}

// WeeklyRecap asks the side service for this week's recap of a group
func WeeklyRecap(w http.ResponseWriter, r *http.Request) {
	p, err := deps.Coord.Profile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	gid := chi.URLParam(r, "groupID")
	if !p.IsMember(gid) {
		writeFail(w, http.StatusForbidden, "You are not a member of this group")
		return
	}
	language := r.URL.Query().Get("lang")
	if language == "" {
		language = p.Language
	}
	recap, err := deps.Side.WeeklyRecap(r.Context(), callerTokens(r), gid, language)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecapResponse{Success: true, Recap: recap})
}
