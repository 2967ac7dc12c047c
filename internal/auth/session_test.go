package auth

import (
	"errors"
	"testing"
	"time"
)

func TestNewSessionSnapshotsAccount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &Account{
		ID:         42,
		Name:       "Player",
		Email:      "p@example.com",
		Priv:       PrivNormal | PrivVerified | PrivSupporter,
		SilenceEnd: now.Add(time.Hour).Unix(),
	}

	session := NewSession(account, now)
	if session.ID == "" {
		t.Fatal("no session id")
	}
	if !session.Authenticated() {
		t.Fatal("fresh session not authenticated")
	}
	if session.AccountID != 42 || session.Name != "Player" {
		t.Fatalf("bad snapshot: %+v", session)
	}
	if !session.IsDonator() || session.IsStaff() {
		t.Fatalf("bad privilege view: %+v", session)
	}
	if !session.Silenced(now) {
		t.Fatal("active silence not reported")
	}
	if session.Silenced(now.Add(2 * time.Hour)) {
		t.Fatal("expired silence still reported")
	}

	other := NewSession(account, now)
	if other.ID == session.ID {
		t.Fatal("session ids collide")
	}
}

func TestLogoutIsIdempotentInEffect(t *testing.T) {
	account := &Account{ID: 7, Name: "x", Priv: PrivNormal | PrivVerified}
	session := NewSession(account, time.Now())

	anon, err := Logout(session)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if anon.Authenticated() {
		t.Fatal("session still authenticated after logout")
	}

	// A second logout fails loudly but leaves the same anonymous state.
	again, err := Logout(anon)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("second logout = %v, want ErrNotAuthenticated", err)
	}
	if again.Authenticated() {
		t.Fatal("second logout produced an authenticated session")
	}
}
