package derived

import (
	"time"

	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/streak"
)

// GroupSummary is one group row of the dashboard.
type GroupSummary struct {
	Group  models.Group `json:"group"`
	Unread int          `json:"unread"`
	Unity  int          `json:"unity"`
}

// Dashboard is the view model recomputed after every snapshot.
type Dashboard struct {
	Today              string                 `json:"today"`
	Profile            models.UserProfile     `json:"profile"`
	Streak             int                    `json:"streak"`
	Level              int                    `json:"level"`
	LevelDays          int                    `json:"levelDays"`
	DaysToNextLevel    int                    `json:"daysToNextLevel"`
	Groups             []GroupSummary         `json:"groups"`
	TotalUnread        int                    `json:"totalUnread"`
	Notification       *CrossPostNotification `json:"notification,omitempty"`
	InactivityWarnings []string               `json:"inactivityWarnings,omitempty"`
	Loading            bool                   `json:"loading"`

	// Exhausted is set when a live stream hit a quota failure and will not
	// recover without reconnecting.
	Exhausted bool `json:"exhausted,omitempty"`
}

// Reconciler holds the latest snapshot of each stream. It is confined to one
// goroutine; Dashboard recomputes everything from the held snapshots.
type Reconciler struct {
	profile       *models.UserProfile
	groups        map[string]models.Group
	readStates    map[string]models.ReadState
	readStatesSet bool
}

// NewReconciler returns an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		groups:     make(map[string]models.Group),
		readStates: make(map[string]models.ReadState),
	}
}

// SetProfile replaces the profile snapshot and drops groups the profile no
// longer lists.
func (r *Reconciler) SetProfile(p models.UserProfile) {
	r.profile = &p
	keep := make(map[string]bool, len(p.GroupIDs))
	for _, id := range p.GroupIDs {
		keep[id] = true
	}
	for id := range r.groups {
		if !keep[id] {
			delete(r.groups, id)
		}
	}
}

// Profile returns the latest profile snapshot.
func (r *Reconciler) Profile() (models.UserProfile, bool) {
	if r.profile == nil {
		return models.UserProfile{}, false
	}
	return *r.profile, true
}

// SetGroup replaces one group snapshot. A missing document removes it.
func (r *Reconciler) SetGroup(g models.Group) {
	if !g.Exists {
		delete(r.groups, g.ID)
		return
	}
	r.groups[g.ID] = g
}

// RemoveGroup forgets a group snapshot.
func (r *Reconciler) RemoveGroup(id string) {
	delete(r.groups, id)
}

// Group returns the latest snapshot of one group.
func (r *Reconciler) Group(id string) (models.Group, bool) {
	g, ok := r.groups[id]
	return g, ok
}

// SetReadStates merges a full read-state snapshot into what is held. A state
// missing from the snapshot keeps its previous value.
func (r *Reconciler) SetReadStates(states []models.ReadState) {
	for _, rs := range states {
		r.readStates[rs.GroupID] = MergeReadState(r.readStates[rs.GroupID], rs)
	}
	r.readStatesSet = true
}

// ReadState returns the merged read state for a group.
func (r *Reconciler) ReadState(groupID string) (models.ReadState, bool) {
	rs, ok := r.readStates[groupID]
	return rs, ok
}

// ReadStatesLoaded reports whether a read-state snapshot has arrived.
func (r *Reconciler) ReadStatesLoaded() bool {
	return r.readStatesSet
}

// ResetReadStates drops all read-state knowledge, returning to loading.
func (r *Reconciler) ResetReadStates() {
	r.readStates = make(map[string]models.ReadState)
	r.readStatesSet = false
}

// Reset drops every snapshot, as on sign-out.
func (r *Reconciler) Reset() {
	r.profile = nil
	r.groups = make(map[string]models.Group)
	r.ResetReadStates()
}

// Groups returns held groups in profile order.
func (r *Reconciler) Groups() []models.Group {
	if r.profile == nil {
		return nil
	}
	out := make([]models.Group, 0, len(r.profile.GroupIDs))
	for _, id := range r.profile.GroupIDs {
		if g, ok := r.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Dashboard recomputes the view model at now.
func (r *Reconciler) Dashboard(now time.Time) Dashboard {
	if r.profile == nil {
		return Dashboard{Loading: true}
	}
	p := *r.profile
	loc := p.Location()
	today := p.Today(now)

	d := Dashboard{
		Today:   today,
		Profile: p,
		Streak:  streak.Current(p.StreakCount, p.LastPostDate, today),
		Level:   streak.Level(p.TotalStudyDays),
		Loading: !r.readStatesSet,
	}
	d.LevelDays, d.DaysToNextLevel = streak.Progress(p.TotalStudyDays)

	groups := r.Groups()
	unread := make(map[string]int, len(groups))
	for _, g := range groups {
		var rs *models.ReadState
		if state, ok := r.readStates[g.ID]; ok {
			rs = &state
		}
		n := UnreadCount(g, rs, !r.readStatesSet)
		unread[g.ID] = n
		d.TotalUnread += n
		d.Groups = append(d.Groups, GroupSummary{
			Group:  g,
			Unread: n,
			Unity:  UnityPercentage(g, today, loc),
		})
	}
	d.Notification = LatestCrossPostNotification(groups, unread, p.ID, today, loc)
	d.InactivityWarnings = InactivityWarnings(groups, p.ID, now)
	return d
}
