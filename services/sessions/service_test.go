package sessions_test

import (
	"errors"
	"testing"
	"time"

	"playlog/services/sessions"
)

func TestLoginResolveLogout(t *testing.T) {
	svc := sessions.NewService(0)

	var changes []sessions.Change
	cancel := svc.Watch(func(c sessions.Change) { changes = append(changes, c) })
	defer cancel()

	first, err := svc.Login("u1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := svc.Login("u1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first.Token == second.Token {
		t.Fatalf("expected distinct tokens")
	}

	resolved, err := svc.Resolve(first.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.UserID != "u1" {
		t.Fatalf("expected u1, got %q", resolved.UserID)
	}

	svc.Logout(first.Token)
	if len(changes) != 1 {
		t.Fatalf("expected u1 to remain signed in with second session, got %v", changes)
	}
	svc.Logout(second.Token)

	if _, err := svc.Resolve(first.Token); !errors.Is(err, sessions.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	want := []sessions.Change{{UserID: "u1", SignedIn: true}, {UserID: "u1", SignedIn: false}}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %v", len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("change %d: expected %+v, got %+v", i, want[i], changes[i])
		}
	}
}

func TestResolveExpiresSessions(t *testing.T) {
	svc := sessions.NewService(time.Hour)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	var signedOut bool
	svc.Watch(func(c sessions.Change) {
		if !c.SignedIn {
			signedOut = true
		}
	})

	session, err := svc.Login("u1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.Resolve(session.Token); !errors.Is(err, sessions.ErrInvalidSession) {
		t.Fatalf("expected expired session, got %v", err)
	}
	if !signedOut {
		t.Fatalf("expected sign-out change after expiry")
	}
}

func TestLoginRequiresUser(t *testing.T) {
	svc := sessions.NewService(0)
	if _, err := svc.Login("  "); !errors.Is(err, sessions.ErrUserRequired) {
		t.Fatalf("expected ErrUserRequired, got %v", err)
	}
}

func TestSweepEndsExpiredSessions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := sessions.NewService(time.Hour)
	svc.SetClock(func() time.Time { return now })

	var signedOut []string
	cancel := svc.Watch(func(c sessions.Change) {
		if !c.SignedIn {
			signedOut = append(signedOut, c.UserID)
		}
	})
	defer cancel()

	if _, err := svc.Login("old"); err != nil {
		t.Fatalf("login: %v", err)
	}
	now = now.Add(30 * time.Minute)
	fresh, err := svc.Login("fresh")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if n := svc.Sweep(); n != 0 {
		t.Fatalf("expected nothing to sweep yet, got %d", n)
	}

	now = now.Add(45 * time.Minute)
	if n := svc.Sweep(); n != 1 {
		t.Fatalf("expected one expired session, got %d", n)
	}
	if len(signedOut) != 1 || signedOut[0] != "old" {
		t.Fatalf("expected old to be signed out, got %v", signedOut)
	}
	if _, err := svc.Resolve(fresh.Token); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}
