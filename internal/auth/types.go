package auth

import "time"

// BotAccountID is reserved for the in-game bot. It is stored like any other
// account but can never authenticate.
const BotAccountID = 1

// Account is the durable credential-bearing entity. Mutations go through the
// Service only; accounts are never deleted, only flagged.
type Account struct {
	ID             int64
	Name           string
	SafeName       string
	Email          string
	PasswordHash   string
	Priv           Privileges
	Country        string
	SilenceEnd     int64
	CreatedAt      time.Time
	LatestActivity time.Time

	// PasswordChangedAt moves on every credential rotation; session tokens
	// carry the value they were minted under so superseded ones can be
	// rejected at the transport edge.
	PasswordChangedAt time.Time
}

// AccountRef identifies an account either by id or by (display or safe) name.
type AccountRef struct {
	ID   int64
	Name string
}

// RefByID references an account by its numeric identifier.
func RefByID(id int64) AccountRef { return AccountRef{ID: id} }

// RefByName references an account by display or normalized name.
func RefByName(name string) AccountRef { return AccountRef{Name: name} }

// VerifyResult is the outcome of a credential check.
type VerifyResult int

const (
	// Mismatch means the plaintext does not correspond to the stored hash.
	Mismatch VerifyResult = iota
	// Match means possession of the correct plaintext was proven.
	Match
)

func (r VerifyResult) String() string {
	if r == Match {
		return "match"
	}
	return "mismatch"
}

// Session is the authenticated context issued after a successful login.
// It is an explicit value: the web layer serializes it into a transport
// token and back, nothing in here mutates ambient state.
type Session struct {
	ID         string
	AccountID  int64
	Name       string
	Email      string
	Priv       Privileges
	SilenceEnd int64
	IssuedAt   time.Time

	// PasswordChangedAt is the account's credential generation this session
	// was minted under.
	PasswordChangedAt time.Time
}

// Authenticated reports whether the session belongs to a real account.
func (s Session) Authenticated() bool { return s.AccountID != 0 }

// IsStaff reports whether the session holds a staff role.
func (s Session) IsStaff() bool { return s.Priv.IsStaff() }

// IsDonator reports whether the session holds a donor perk.
func (s Session) IsDonator() bool { return s.Priv.IsDonator() }

// Silenced reports whether the account is muted at the given instant.
func (s Session) Silenced(now time.Time) bool {
	return s.SilenceEnd > now.Unix()
}
