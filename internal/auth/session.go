package auth

import (
	"time"

	"seiran.gg/internal/ids"
)

// NewSession snapshots the account fields needed for authorization decisions
// into a fresh authenticated session.
func NewSession(account *Account, now time.Time) Session {
	return Session{
		ID:                ids.New(),
		AccountID:         account.ID,
		Name:              account.Name,
		Email:             account.Email,
		Priv:              account.Priv,
		SilenceEnd:        account.SilenceEnd,
		IssuedAt:          now.UTC(),
		PasswordChangedAt: account.PasswordChangedAt,
	}
}

// Logout transitions an authenticated session back to anonymous. Calling it
// on an already-anonymous session fails with ErrNotAuthenticated; nothing
// partial remains either way.
func Logout(session Session) (Session, error) {
	if !session.Authenticated() {
		return Session{}, ErrNotAuthenticated
	}
	return Session{}, nil
}
