package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/derived"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/streak"
	"github.com/daijir/scripture-habit/internal/timeutil"
)

// backfill repairs note-to-message links for the given users, or for every
// user when none are given.
func backfill(ctx context.Context, w io.Writer, st store.Store, coord *mutation.Coordinator, userIDs []string) error {
	if len(userIDs) == 0 {
		snap, err := st.Query(ctx, store.Query{Collection: "users"})
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, doc := range snap.Docs {
			userIDs = append(userIDs, doc.ID)
		}
	}
	total := 0
	for _, uid := range userIDs {
		fixed, err := coord.BackfillNoteMessageIDs(ctx, uid)
		if err != nil {
			fmt.Fprintf(w, "%s: error: %v\n", uid, err)
			continue
		}
		if fixed > 0 {
			fmt.Fprintf(w, "%s: %d links\n", uid, fixed)
		}
		total += fixed
	}
	fmt.Fprintf(w, "backfilled %d links for %d users\n", total, len(userIDs))
	return nil
}

// unityReport prints who counts as active today and the unity percentage,
// optionally writing the activity set back.
func unityReport(ctx context.Context, w io.Writer, st store.Store, coord *mutation.Coordinator, groupID, tz string, reconcile bool, now time.Time) error {
	doc, err := st.Get(ctx, store.GroupPath(groupID))
	if err != nil {
		return fmt.Errorf("read group: %w", err)
	}
	g := models.DecodeGroup(doc)
	if !g.Exists {
		return fmt.Errorf("group %s does not exist", groupID)
	}
	g.ID = groupID
	loc := timeutil.LoadLocation(tz)
	today := timeutil.DateIn(now, loc)

	active := derived.ActiveToday(g, today, loc)
	sort.Strings(active)
	fmt.Fprintf(w, "group:   %s (%s)\n", g.Name, groupID)
	fmt.Fprintf(w, "today:   %s %s\n", today, loc)
	fmt.Fprintf(w, "members: %d\n", g.MemberCount())
	fmt.Fprintf(w, "active:  %s\n", strings.Join(active, ", "))
	fmt.Fprintf(w, "unity:   %d%%\n", derived.UnityPercentage(g, today, loc))

	if reconcile {
		if coord.ReconcileActivity(ctx, g, today, loc) {
			fmt.Fprintln(w, "activity set written back")
		} else {
			fmt.Fprintln(w, "activity set already up to date")
		}
	}
	return nil
}

// streakReport prints a user's stored and displayed streak and level.
func streakReport(ctx context.Context, w io.Writer, coord *mutation.Coordinator, userID string, now time.Time) error {
	p, err := coord.Profile(ctx, userID)
	if err != nil {
		return err
	}
	today := p.Today(now)
	into, remaining := streak.Progress(p.TotalStudyDays)
	fmt.Fprintf(w, "user:       %s (%s)\n", p.Nickname, userID)
	fmt.Fprintf(w, "today:      %s %s\n", today, p.Location())
	fmt.Fprintf(w, "last post:  %s\n", orDash(p.LastPostDate))
	fmt.Fprintf(w, "streak:     %d stored, %d displayed\n", p.StreakCount, streak.Current(p.StreakCount, p.LastPostDate, today))
	fmt.Fprintf(w, "study days: %d\n", p.TotalStudyDays)
	fmt.Fprintf(w, "level:      %d (%d/%d, %d to next)\n", streak.Level(p.TotalStudyDays), into, streak.DaysPerLevel, remaining)
	return nil
}

// printToken mints an id token for calling the REST API by hand.
func printToken(w io.Writer, tokens *auth.TokenService, userID string) error {
	tok, exp, err := tokens.CreateForUser(userID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, tok)
	fmt.Fprintf(w, "# expires %s\n", exp.UTC().Format(time.RFC3339))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
