package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/streak"
)

// NoteRequest represents a note to post or the new content of one
type NoteRequest struct {
	Scripture string   `json:"scripture"`
	Chapter   string   `json:"chapter"`
	Text      string   `json:"text"`
	GroupIDs  []string `json:"group_ids,omitempty"`
}

// CheckInResult is the streak effect of posting a note
type CheckInResult struct {
	Outcome        streak.Outcome `json:"outcome"`
	Streak         int            `json:"streak"`
	TotalStudyDays int            `json:"total_study_days"`
	Level          int            `json:"level"`
	LeveledUp      bool           `json:"leveled_up"`
}

// PostNoteResponse reports what was committed
type PostNoteResponse struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Note         models.PersonalNote `json:"note"`
	FailedGroups []string            `json:"failed_groups,omitempty"`
	CheckIn      *CheckInResult      `json:"check_in,omitempty"`
}

// NotesResponse lists the caller's notes
type NotesResponse struct {
	Success bool                  `json:"success"`
	Notes   []models.PersonalNote `json:"notes"`
	Total   int                   `json:"total"`
}

// BackfillResponse reports repaired note mappings
type BackfillResponse struct {
	Success bool `json:"success"`
	Fixed   int  `json:"fixed"`
}

// PostNote saves a study note, checks the caller in and shares the note
func PostNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := deps.Coord.PostNote(r.Context(), middleware.UserID(r.Context()), mutation.NoteInput{
		Scripture: req.Scripture,
		Chapter:   req.Chapter,
		Text:      req.Text,
		GroupIDs:  req.GroupIDs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := PostNoteResponse{
		Success:      true,
		Message:      "Note saved",
		Note:         res.Note,
		FailedGroups: res.FailedGroups,
	}
	if ci := res.CheckIn; ci != nil {
		resp.CheckIn = &CheckInResult{
			Outcome:        ci.Result.Outcome,
			Streak:         ci.Result.Streak,
			TotalStudyDays: ci.TotalStudyDays,
			Level:          ci.Level,
			LeveledUp:      ci.LeveledUp(),
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetNotes lists the caller's notes, newest first
func GetNotes(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserID(r.Context())
	snap, err := deps.Store.Query(r.Context(), store.Query{
		Collection: store.NotesPath(uid),
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      100,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes := make([]models.PersonalNote, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		notes = append(notes, models.DecodeNote(doc))
	}
	writeJSON(w, http.StatusOK, NotesResponse{Success: true, Notes: notes, Total: len(notes)})
}

// EditNote updates a note and the group messages it was shared as
func EditNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	err := deps.Coord.EditNote(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "noteID"),
		req.Scripture, req.Chapter, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Note updated"})
}

// DeleteNote deletes a note and its group messages
func DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := deps.Coord.DeleteNote(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "noteID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Note deleted"})
}

// BackfillNotes repairs missing note-to-message links for the caller
func BackfillNotes(w http.ResponseWriter, r *http.Request) {
	fixed, err := deps.Coord.BackfillNoteMessageIDs(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BackfillResponse{Success: true, Fixed: fixed})
}
