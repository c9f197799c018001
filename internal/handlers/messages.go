package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/models"
)

// SendMessageRequest represents the request to send a message
type SendMessageRequest struct {
	Text    string           `json:"text"`
	ReplyTo *models.ReplyRef `json:"reply_to,omitempty"`
}

// MessageResponse represents a written message
type MessageResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Msg     models.Message `json:"msg"`
}

// EditMessageRequest replaces a message's text
type EditMessageRequest struct {
	Text string `json:"text"`
}

// ReactionResponse reports the reaction state after a toggle
type ReactionResponse struct {
	Success bool `json:"success"`
	Reacted bool `json:"reacted"`
}

// ReadRequest acknowledges messages as read
type ReadRequest struct {
	Loaded int `json:"loaded"`
}

// SendMessage posts a chat message to a group
func SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := actor(w, r)
	if !ok {
		return
	}
	msg, err := deps.Coord.SendMessage(r.Context(), a, chi.URLParam(r, "groupID"), req.Text, req.ReplyTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Success: true, Message: "Message sent", Msg: msg})
}

// EditMessage changes the text of the caller's message
func EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !decode(w, r, &req) {
		return
	}
	a, ok := actor(w, r)
	if !ok {
		return
	}
	err := deps.Coord.EditMessage(r.Context(), a, chi.URLParam(r, "groupID"), chi.URLParam(r, "messageID"), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Message updated"})
}

// DeleteMessage deletes the caller's message
func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	err := deps.Coord.DeleteMessage(r.Context(), a, chi.URLParam(r, "groupID"), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Message deleted"})
}

// ToggleReaction adds the caller's reaction or removes it if present
func ToggleReaction(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	reacted, err := deps.Coord.ToggleReaction(r.Context(), a, chi.URLParam(r, "groupID"), chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReactionResponse{Success: true, Reacted: reacted})
}

// AcknowledgeRead raises the caller's read count; it never lowers it
func AcknowledgeRead(w http.ResponseWriter, r *http.Request) {
	var req ReadRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Loaded < 0 {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Loaded count cannot be negative", Field: "loaded"})
		return
	}
	err := deps.Coord.AcknowledgeRead(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "groupID"), req.Loaded)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}
