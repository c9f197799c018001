package sidesvc

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jellydator/ttlcache/v3"
)

// JoinResult is the group joined by invite code.
type JoinResult struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
}

// JoinGroup adds the caller to the group with inviteCode.
func (c *Client) JoinGroup(ctx context.Context, tokens TokenSource, inviteCode string) (JoinResult, error) {
	var out JoinResult
	err := c.do(ctx, http.MethodPost, "/api/join-group", tokens, map[string]string{"inviteCode": inviteCode}, &out)
	return out, err
}

// LeaveGroup removes the caller from groupID.
func (c *Client) LeaveGroup(ctx context.Context, tokens TokenSource, groupID string) error {
	return c.do(ctx, http.MethodPost, "/api/leave-group", tokens, map[string]string{"groupId": groupID}, nil)
}

// DeleteGroup deletes groupID; only its owner may.
func (c *Client) DeleteGroup(ctx context.Context, tokens TokenSource, groupID string) error {
	return c.do(ctx, http.MethodPost, "/api/delete-group", tokens, map[string]string{"groupId": groupID}, nil)
}

// Recap is a generated weekly summary of a group's notes.
type Recap struct {
	GroupID string `json:"groupId"`
	Summary string `json:"summary"`
}

// WeeklyRecap asks the service to generate and post this week's recap.
func (c *Client) WeeklyRecap(ctx context.Context, tokens TokenSource, groupID, language string) (Recap, error) {
	var out Recap
	err := c.do(ctx, http.MethodPost, "/api/generate-weekly-recap", tokens, map[string]string{
		"groupId":  groupID,
		"language": language,
	}, &out)
	return out, err
}

// LinkPreview is the metadata shown under a message containing a URL.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	SiteName    string `json:"siteName"`
}

// LinkPreview fetches preview metadata for target, served from cache when
// fresh. Previews are public and sent unauthenticated.
func (c *Client) LinkPreview(ctx context.Context, target string) (LinkPreview, error) {
	if item := c.previews.Get(target); item != nil {
		return item.Value(), nil
	}
	var out LinkPreview
	if err := c.do(ctx, http.MethodGet, "/api/url-preview?url="+url.QueryEscape(target), nil, nil, &out); err != nil {
		return LinkPreview{}, err
	}
	c.previews.Set(target, out, ttlcache.DefaultTTL)
	return out, nil
}

// QuestionRequest describes the passage to generate study questions for.
type QuestionRequest struct {
	Scripture string `json:"scripture"`
	Chapter   string `json:"chapter"`
	Language  string `json:"language"`
}

// GenerateQuestions returns discussion questions for a passage.
func (c *Client) GenerateQuestions(ctx context.Context, tokens TokenSource, req QuestionRequest) ([]string, error) {
	var out struct {
		Questions []string `json:"questions"`
	}
	err := c.do(ctx, http.MethodPost, "/api/generate-questions", tokens, req, &out)
	return out.Questions, err
}

// Translate translates text into the target language code.
func (c *Client) Translate(ctx context.Context, tokens TokenSource, text, target string) (string, error) {
	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	err := c.do(ctx, http.MethodPost, "/api/translate", tokens, map[string]string{
		"text":       text,
		"targetLang": target,
	}, &out)
	return out.TranslatedText, err
}
