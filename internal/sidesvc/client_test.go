package sidesvc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) IDToken(ctx context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) IDToken(ctx context.Context) (string, error) { return "", errors.New("signed out") }

func TestJoinGroupSendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/join-group", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ABC123", body["inviteCode"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"groupId":"g1","groupName":"Alma"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	defer c.Close()
	res, err := c.JoinGroup(context.Background(), staticToken("tok"), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, JoinResult{GroupID: "g1", GroupName: "Alma"}, res)
}

func TestErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusNotFound, `{"error":"Invalid invite code"}`, "Invalid invite code"},
		{"json message", http.StatusForbidden, `{"message":"Not the owner"}`, "Not the owner"},
		{"plain text", http.StatusBadGateway, "upstream down\n", "upstream down"},
		{"empty", http.StatusInternalServerError, "", "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c := New(srv.URL)
			defer c.Close()

			err := c.LeaveGroup(context.Background(), staticToken("tok"), "g1")
			var svcErr *Error
			require.True(t, errors.As(err, &svcErr))
			assert.Equal(t, tt.status, svcErr.Status)
			assert.Equal(t, tt.message, svcErr.Message)
		})
	}
}

func TestTokenFailureSkipsRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()
	c := New(srv.URL)
	defer c.Close()

	_, err := c.Translate(context.Background(), failingToken{}, "hola", "en")
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestLinkPreviewIsCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.org/a?b=c", r.URL.Query().Get("url"))
		_, _ = w.Write([]byte(`{"url":"https://example.org/a?b=c","title":"Example"}`))
	}))
	defer srv.Close()
	c := New(srv.URL, WithPreviewTTL(time.Minute))
	defer c.Close()

	for i := 0; i < 3; i++ {
		p, err := c.LinkPreview(context.Background(), "https://example.org/a?b=c")
		require.NoError(t, err)
		assert.Equal(t, "Example", p.Title)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGenerateQuestions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req QuestionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Alma", req.Scripture)
		_, _ = w.Write([]byte(`{"questions":["What is faith?","Why plant a seed?"]}`))
	}))
	defer srv.Close()
	c := New(srv.URL)
	defer c.Close()

	qs, err := c.GenerateQuestions(context.Background(), staticToken("t"), QuestionRequest{Scripture: "Alma", Chapter: "32", Language: "en"})
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}
