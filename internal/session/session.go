// Package session reconciles one signed-in user's live streams into a
// dashboard and an open conversation. A Session is confined to its
// executor: every exported method must be called from it, and every store
// callback is re-posted onto it by the subscription manager.
package session

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/daijir/scripture-habit/internal/derived"
	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/readpos"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/subscription"
)

// DefaultMessageWindow is how many of the newest messages a conversation
// subscribes to.
const DefaultMessageWindow = 200

// clockInterval is how often an idle session checks whether time alone has
// changed its dashboard.
const clockInterval = time.Minute

// EventType tags an Event.
type EventType string

const (
	EventDashboard    EventType = "dashboard"
	EventConversation EventType = "conversation"
	EventRestore      EventType = "restore"
	EventError        EventType = "error"
	EventExhausted    EventType = "exhausted"
)

// Event is pushed to listeners after state changes.
type Event struct {
	Type         EventType          `json:"type"`
	Dashboard    *derived.Dashboard `json:"dashboard,omitempty"`
	Conversation *Conversation      `json:"conversation,omitempty"`
	GroupID      string             `json:"groupId,omitempty"`
	Position     *readpos.Position  `json:"position,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Conversation is the open group chat.
type Conversation struct {
	GroupID  string           `json:"groupId"`
	Group    models.Group     `json:"group"`
	Messages []models.Message `json:"messages"`
	Loading  bool             `json:"loading"`
}

// Options tunes a Session.
type Options struct {
	Debounce      time.Duration
	MessageWindow int
}

// Session follows one user's profile, groups, read states and open
// conversation.
type Session struct {
	ctx     context.Context
	userID  string
	exec    loop.Executor
	subs    *subscription.Manager
	rec     *derived.Reconciler
	tracker *readpos.Tracker
	coord   *mutation.Coordinator
	window  int

	convo      *Conversation
	convoSubs  []subscription.Handle
	msgsLoaded bool
	clockKey   string
	listeners  map[int]func(Event)
	nextID     int
	reconciled map[string]string
	closed     bool
	inflight   sync.WaitGroup

	// Now is the session clock.
	Now func() time.Time
}

// New returns a Session for userID. Call Start on exec to open streams.
func New(ctx context.Context, exec loop.Executor, st store.Store, bookmarks kv.Store, coord *mutation.Coordinator, userID string, opts Options) *Session {
	if opts.MessageWindow <= 0 {
		opts.MessageWindow = DefaultMessageWindow
	}
	s := &Session{
		ctx:        ctx,
		userID:     userID,
		exec:       exec,
		subs:       subscription.New(ctx, exec, st),
		rec:        derived.NewReconciler(),
		tracker:    readpos.NewTracker(exec, bookmarks, userID, opts.Debounce),
		coord:      coord,
		window:     opts.MessageWindow,
		listeners:  make(map[int]func(Event)),
		reconciled: make(map[string]string),
		Now:        time.Now,
	}
	s.subs.OnError = func(kind subscription.Kind, err error) {
		s.emit(Event{Type: EventError, Error: string(kind) + ": " + err.Error()})
	}
	s.subs.OnExhausted = func(kind subscription.Kind, err error) {
		s.emit(Event{Type: EventExhausted, Error: err.Error()})
	}
	s.subs.OnReset(subscription.KindReadStates, s.rec.ResetReadStates)
	s.tracker.OnRestore = func(groupID string, pos readpos.Position) {
		p := pos
		s.emit(Event{Type: EventRestore, GroupID: groupID, Position: &p})
	}
	return s
}

// UserID returns the session's user.
func (s *Session) UserID() string { return s.userID }

// Listen registers fn for events; the returned func removes it.
func (s *Session) Listen(fn func(Event)) (cancel func()) {
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

func (s *Session) emit(ev Event) {
	if s.closed {
		return
	}
	for _, fn := range s.listeners {
		fn(ev)
	}
}

// Start subscribes to the profile and read-state streams.
func (s *Session) Start() {
	h := s.subs.Subscribe(subscription.KindProfile, s.userID,
		store.DocTarget(store.UserPath(s.userID)), s.onProfile)
	s.subs.Every(h, clockInterval, s.onClock)
	s.subs.Subscribe(subscription.KindReadStates, s.userID,
		store.QueryTarget(store.Query{Collection: store.ReadStatesPath(s.userID)}), s.onReadStates)
}

func (s *Session) onProfile(snap store.Snapshot) {
	p := models.DecodeUserProfile(snap.Doc())
	if !p.Exists {
		// Account deleted or not yet created.
		s.closeGroups(nil)
		s.rec.Reset()
		s.emitDashboard()
		return
	}
	s.rec.SetProfile(p)

	keep := make(map[string]bool, len(p.GroupIDs))
	for _, gid := range p.GroupIDs {
		keep[gid] = true
	}
	s.closeGroups(keep)
	for _, gid := range p.GroupIDs {
		gid := gid
		s.subs.Subscribe(subscription.GroupKind(gid), gid,
			store.DocTarget(store.GroupPath(gid)), func(snap store.Snapshot) { s.onGroup(gid, snap) })
	}
	if s.convo != nil && !keep[s.convo.GroupID] {
		s.CloseConversation()
	}
	s.emitDashboard()
}

// closeGroups tears down dashboard group subscriptions not in keep.
func (s *Session) closeGroups(keep map[string]bool) {
	for _, kind := range s.subs.Kinds() {
		gid, ok := strings.CutPrefix(string(kind), "group:")
		if ok && !keep[gid] {
			s.subs.Clear(kind)
			s.rec.RemoveGroup(gid)
		}
	}
}

func (s *Session) onGroup(gid string, snap store.Snapshot) {
	g := models.DecodeGroup(snap.Doc())
	g.ID = gid
	s.rec.SetGroup(g)
	s.reconcileActivity(g)
	s.emitDashboard()
}

// reconcileActivity writes a locally known activity set back at most once
// per group per day.
func (s *Session) reconcileActivity(g models.Group) {
	p, ok := s.rec.Profile()
	if !ok || s.coord == nil || !g.Exists {
		return
	}
	today := p.Today(s.Now())
	if s.reconciled[g.ID] == today {
		return
	}
	if _, needed := derived.ActivityWriteBack(g, today, p.Location()); !needed {
		return
	}
	s.reconciled[g.ID] = today
	s.async(func(ctx context.Context) {
		s.coord.ReconcileActivity(ctx, g, today, p.Location())
	})
}

func (s *Session) onReadStates(snap store.Snapshot) {
	states := make([]models.ReadState, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		states = append(states, models.DecodeReadState(doc))
	}
	s.rec.SetReadStates(states)
	s.tryRestore()
	s.emitDashboard()
}

// Dashboard returns the current view model.
func (s *Session) Dashboard() derived.Dashboard {
	d := s.rec.Dashboard(s.Now())
	d.Exhausted = s.subs.Exhausted()
	return d
}

func (s *Session) emitDashboard() {
	d := s.Dashboard()
	s.clockKey = clockKey(d)
	s.emit(Event{Type: EventDashboard, Dashboard: &d})
}

// onClock re-emits the dashboard when the user's day rolled over or an
// inactivity warning opened or closed with no snapshot arriving.
func (s *Session) onClock() {
	if clockKey(s.Dashboard()) != s.clockKey {
		s.emitDashboard()
	}
}

// clockKey covers the parts of a dashboard that depend on the current time.
func clockKey(d derived.Dashboard) string {
	return d.Today + "|" + strings.Join(d.InactivityWarnings, ",")
}

// OpenConversation switches the open conversation to groupID. Callbacks
// still in flight for the previous group are discarded.
func (s *Session) OpenConversation(groupID string) {
	if s.convo != nil && s.convo.GroupID == groupID {
		return
	}
	s.CloseConversation()

	s.convo = &Conversation{GroupID: groupID, Loading: true}
	s.msgsLoaded = false
	if g, ok := s.rec.Group(groupID); ok {
		s.convo.Group = g
	}
	s.tracker.Enter(groupID)

	s.convoSubs = []subscription.Handle{
		s.subs.Subscribe(subscription.KindGroup, groupID,
			store.DocTarget(store.GroupPath(groupID)), s.onActiveGroup),
		s.subs.Subscribe(subscription.KindMessages, groupID,
			store.QueryTarget(store.Query{
				Collection: store.MessagesPath(groupID),
				OrderBy:    "createdAt",
				Descending: true,
				Limit:      s.window,
			}), s.onMessages),
	}
	s.emitConversation()
}

// CloseConversation leaves the open conversation, persisting any pending
// scroll position.
func (s *Session) CloseConversation() {
	if s.convo == nil {
		return
	}
	s.tracker.Leave()
	for _, h := range s.convoSubs {
		s.subs.Unsubscribe(h)
	}
	s.convoSubs = nil
	s.convo = nil
	s.msgsLoaded = false
	s.emit(Event{Type: EventConversation})
}

// Conversation returns a copy of the open conversation.
func (s *Session) Conversation() (Conversation, bool) {
	if s.convo == nil {
		return Conversation{}, false
	}
	c := *s.convo
	c.Messages = append([]models.Message(nil), s.convo.Messages...)
	return c, true
}

func (s *Session) onActiveGroup(snap store.Snapshot) {
	g := models.DecodeGroup(snap.Doc())
	g.ID = s.convo.GroupID
	s.convo.Group = g
	s.tryRestore()
	s.emitConversation()
}

func (s *Session) onMessages(snap store.Snapshot) {
	msgs := make([]models.Message, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		msgs = append(msgs, models.DecodeMessage(doc))
	}
	models.SortMessages(msgs)
	s.convo.Messages = msgs
	s.convo.Loading = false
	s.msgsLoaded = true

	s.tryRestore()
	if s.tracker.State() == readpos.StateRestored {
		s.acknowledge()
	}
	s.emitConversation()
}

// tryRestore resolves the entry position once messages and read states are
// both known.
func (s *Session) tryRestore() {
	if s.convo == nil || !s.msgsLoaded || s.tracker.State() != readpos.StateAwaiting {
		return
	}
	if !s.rec.ReadStatesLoaded() {
		return
	}
	readCount := 0
	if rs, ok := s.rec.ReadState(s.convo.GroupID); ok {
		readCount = rs.ReadMessageCount
	}
	if _, ok := s.tracker.OnMessages(s.convo.GroupID, s.convo.Messages, readCount, s.total()); ok {
		s.acknowledge()
	}
}

// total is the group's message count, never less than what is loaded.
func (s *Session) total() int {
	total := s.convo.Group.MessageCount
	if g, ok := s.rec.Group(s.convo.GroupID); ok && g.MessageCount > total {
		total = g.MessageCount
	}
	if n := len(s.convo.Messages); n > total {
		total = n
	}
	return total
}

// acknowledge marks everything loaded in the open conversation as read.
// The dashboard reflects it at once; the write follows asynchronously.
func (s *Session) acknowledge() {
	gid := s.convo.GroupID
	loaded := s.total()
	if rs, ok := s.rec.ReadState(gid); ok && rs.ReadMessageCount >= loaded {
		return
	}
	s.rec.SetReadStates([]models.ReadState{{GroupID: gid, ReadMessageCount: loaded, LastReadAt: s.Now().UnixMilli()}})
	s.emitDashboard()
	if s.coord == nil {
		return
	}
	uid := s.userID
	s.async(func(ctx context.Context) {
		if err := s.coord.AcknowledgeRead(ctx, uid, gid, loaded); err != nil {
			log.Printf("⚠️ session: acknowledge %s/%s at %d failed: %v", uid, gid, loaded, err)
		}
	})
}

func (s *Session) emitConversation() {
	if c, ok := s.Conversation(); ok {
		s.emit(Event{Type: EventConversation, Conversation: &c})
	}
}

// Scroll records the top-most visible message of the open conversation.
func (s *Session) Scroll(messageID string) {
	s.tracker.Scroll(messageID)
}

// ForgetBookmark drops the stored scroll position for groupID.
func (s *Session) ForgetBookmark(groupID string) {
	uid := s.userID
	s.async(func(ctx context.Context) {
		if err := s.tracker.Forget(ctx, groupID); err != nil {
			log.Printf("⚠️ session: forget bookmark %s/%s failed: %v", uid, groupID, err)
		}
	})
}

// Close tears down every stream. Events stop immediately.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.CloseConversation()
	s.subs.Close()
	s.closed = true
}

// Wait blocks until background writes started by the session finish.
func (s *Session) Wait() {
	s.inflight.Wait()
}

func (s *Session) async(fn func(ctx context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn(s.ctx)
	}()
}
