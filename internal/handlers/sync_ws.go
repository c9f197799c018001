package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/middleware"
	"github.com/daijir/scripture-habit/internal/session"
)

const (
	syncReadTimeout  = 90 * time.Second
	syncPingInterval = 30 * time.Second
	syncWriteTimeout = 10 * time.Second
	syncOutboxSize   = 64
	syncCloseTimeout = 2 * time.Second
)

var syncUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkSyncOrigin,
}

func checkSyncOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(deps.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range deps.AllowedOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), origin) {
			return true
		}
	}
	return false
}

// SyncClientMessage represents commands coming from the client over WebSocket.
type SyncClientMessage struct {
	Type      string `json:"type"` // "open", "close", "scroll", "forget_bookmark", "ping", "signout"
	GroupID   string `json:"group_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// syncFrame is a server frame that is not a session event.
type syncFrame struct {
	Type string `json:"type"`
}

// SyncWebSocket streams the caller's dashboard and open conversation. The
// socket authenticates with the session token from POST /api/sessions,
// sent as a bearer header or, for browsers, the "session" query parameter.
// All session state lives on one loop goroutine per connection.
func SyncWebSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("session")
	}
	if token == "" {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}
	userID, ok, err := deps.Sessions.Validate(r.Context(), token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}
	if err := deps.Sessions.Refresh(r.Context(), token); err != nil {
		log.Printf("sync: refresh session for %s: %v", userID, err)
	}

	conn, err := syncUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	out := make(chan interface{}, syncOutboxSize)
	send := func(v interface{}) {
		select {
		case out <- v:
		default:
			// Frames carry state deltas the client cannot recover from
			// missing, so a stalled client is disconnected instead.
			log.Printf("sync: outbox full for %s, closing", userID)
			cancel()
		}
	}
	go writeSyncFrames(ctx, cancel, conn, out)

	sh := startSyncHost(userID, send)
	defer sh.close()

	readSyncCommands(conn, sh.lp, sh.host, func() {
		sh.provider.SignOut()
		if err := deps.Sessions.Invalidate(context.Background(), token); err != nil {
			log.Printf("sync: invalidate session for %s: %v", userID, err)
		}
	})
}

// syncHost is the per-connection session machinery. Its loop outlives the
// connection context so the session can always be closed on it, flushing
// the scroll bookmark and releasing store subscriptions.
type syncHost struct {
	lp       *loop.Loop
	host     *session.Host
	provider *auth.Provider
	stop     context.CancelFunc
}

func startSyncHost(userID string, send func(interface{})) *syncHost {
	ctx, stop := context.WithCancel(context.Background())
	lp := loop.New("sync:" + userID)
	go lp.Run(ctx)

	provider := auth.NewProvider(deps.Tokens)
	host := session.NewHost(ctx, lp, deps.Store, deps.KV, deps.Coord, deps.Session)
	host.OnSession = func(s *session.Session) {
		if s == nil {
			send(syncFrame{Type: "signed_out"})
			return
		}
		s.Listen(func(ev session.Event) { send(ev) })
	}
	host.Bind(provider)
	provider.SignIn(userID)
	return &syncHost{lp: lp, host: host, provider: provider, stop: stop}
}

// close ends the live session on the loop, waits for its pending writes so
// an acknowledgement made just before disconnect still lands, then stops
// the loop.
func (sh *syncHost) close() {
	defer sh.stop()
	done := make(chan *session.Session, 1)
	sh.lp.Post(func() {
		last := sh.host.Current()
		sh.host.OnSession = nil
		sh.host.Close()
		done <- last
	})
	select {
	case last := <-done:
		if last != nil {
			last.Wait()
		}
	case <-time.After(syncCloseTimeout):
		log.Printf("sync: loop did not close the session in %s", syncCloseTimeout)
	}
}

// readSyncCommands posts client commands onto the loop until the socket
// closes.
func readSyncCommands(conn *websocket.Conn, lp *loop.Loop, host *session.Host, signOut func()) {
	conn.SetReadLimit(16 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(syncReadTimeout))
	conn.SetPongHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(syncReadTimeout))
		return nil
	})

	withSession := func(fn func(s *session.Session)) {
		lp.Post(func() {
			if s := host.Current(); s != nil {
				fn(s)
			}
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(syncReadTimeout))

		var msg SyncClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		groupID := strings.TrimSpace(msg.GroupID)

		switch msg.Type {
		case "open":
			if groupID != "" {
				withSession(func(s *session.Session) { s.OpenConversation(groupID) })
			}
		case "close":
			withSession(func(s *session.Session) { s.CloseConversation() })
		case "scroll":
			if msg.MessageID != "" {
				withSession(func(s *session.Session) { s.Scroll(msg.MessageID) })
			}
		case "forget_bookmark":
			if groupID != "" {
				withSession(func(s *session.Session) { s.ForgetBookmark(groupID) })
			}
		case "signout":
			signOut()
		case "ping":
			// Read deadline already extended.
		}
	}
}

// writeSyncFrames is the only goroutine writing data frames to conn.
func writeSyncFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan interface{}) {
	ticker := time.NewTicker(syncPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(syncWriteTimeout))
			if err := conn.WriteJSON(v); err != nil {
				cancel()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(syncWriteTimeout)); err != nil {
				cancel()
				return
			}
		}
	}
}
