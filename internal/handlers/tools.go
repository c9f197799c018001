package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/pkg/utils"
)

const maxTranslateLength = utils.MaxNoteLength

// LinkPreviewResponse wraps preview metadata
type LinkPreviewResponse struct {
	Success bool                `json:"success"`
	Preview sidesvc.LinkPreview `json:"preview"`
}

// QuestionsRequest names the passage to generate questions for
type QuestionsRequest struct {
	Scripture string `json:"scripture"`
	Chapter   string `json:"chapter"`
	Language  string `json:"language,omitempty"`
}

// QuestionsResponse lists generated study questions
type QuestionsResponse struct {
	Success   bool     `json:"success"`
	Questions []string `json:"questions"`
}

// TranslateRequest is text to translate
type TranslateRequest struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// TranslateResponse is the translated text
type TranslateResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
}

// LinkPreview returns cached preview metadata for an http(s) URL
func LinkPreview(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "A valid http(s) URL is required", Field: "url"})
		return
	}
	preview, err := deps.Side.LinkPreview(r.Context(), u.String())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkPreviewResponse{Success: true, Preview: preview})
}

// GenerateQuestions asks the side service for discussion questions
func GenerateQuestions(w http.ResponseWriter, r *http.Request) {
	var req QuestionsRequest
	if !decode(w, r, &req) {
		return
	}
	if err := utils.ValidateNote(req.Scripture, req.Chapter, ""); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Language == "" {
		if p, err := deps.Coord.Profile(r.Context(), middleware.UserID(r.Context())); err == nil {
			req.Language = p.Language
		}
	}
	questions, err := deps.Side.GenerateQuestions(r.Context(), callerTokens(r), sidesvc.QuestionRequest{
		Scripture: req.Scripture,
		Chapter:   req.Chapter,
		Language:  req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, QuestionsResponse{Success: true, Questions: questions})
}

// Translate translates a message or note into the target language
func Translate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" || len([]rune(req.Text)) > maxTranslateLength {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Text is required and must be at most 20000 characters", Field: "text"})
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		writeJSON(w, http.StatusBadRequest, Response{Success: false, Message: "Target language is required", Field: "target"})
		return
	}
	text, err := deps.Side.Translate(r.Context(), callerTokens(r), req.Text, req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TranslateResponse{Success: true, Text: text})
}
