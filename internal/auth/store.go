package auth

import "context"

// Store is the narrow persistence contract the credential subsystem needs.
// Implementations back onto the users table (plus the stats rows created at
// registration); uniqueness of safe_name and email is ultimately guaranteed
// by storage-level constraints, not by the availability pre-checks.
type Store interface {
	// FindByID loads an account by numeric identifier.
	FindByID(ctx context.Context, id int64) (*Account, error)
	// FindBySafeName loads an account by normalized name.
	FindBySafeName(ctx context.Context, safeName string) (*Account, error)

	// NameExists reports whether any account holds the normalized name.
	NameExists(ctx context.Context, safeName string) (bool, error)
	// EmailExists reports whether any account holds the email.
	EmailExists(ctx context.Context, email string) (bool, error)

	// Create inserts the account and its initial per-mode stats rows in one
	// transaction, filling in the assigned id.
	Create(ctx context.Context, a *Account) error

	// UpdatePassword persists a new stored hash.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// UpdateName persists a new display name and its normalized form.
	UpdateName(ctx context.Context, id int64, name, safeName string) error
	// UpdateEmail persists a new email.
	UpdateEmail(ctx context.Context, id int64, email string) error

	// TouchActivity bumps latest_activity to now.
	TouchActivity(ctx context.Context, id int64) error
}
