package auth

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"seiran.gg/internal/obs"
)

const defaultCountry = "xx"

// Service is the credential store: source-of-truth reads and writes for
// account credentials, with fast-path verification delegated to the
// injected Cache. One instance per process; tests construct their own with
// an isolated cache.
type Service struct {
	store  Store
	cache  *Cache
	policy Policy
	now    func() time.Time

	registrationOpen bool

	// slowGate bounds concurrent KDF work so one burst of slow checks
	// cannot starve the scheduler for fast-path verifications.
	slowGate chan struct{}

	// locks serializes verify/rotate per account id. Entries are tiny and
	// bounded by the account count, mirroring the cache.
	locks sync.Map

	// slowCompare and hashPassword are replaceable so tests can count slow
	// path invocations without paying for bcrypt.
	slowCompare  func(storedHash string, digest []byte) error
	hashPassword func(plaintext string) (string, error)
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithPolicy sets the configured disallow lists.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRegistration toggles whether new accounts may be created.
func WithRegistration(open bool) Option {
	return func(s *Service) { s.registrationOpen = open }
}

// WithSlowGate bounds the number of concurrent KDF computations.
func WithSlowGate(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.slowGate = make(chan struct{}, n)
		}
	}
}

// WithSlowCompare replaces the KDF comparison. Test hook.
func WithSlowCompare(fn func(storedHash string, digest []byte) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.slowCompare = fn
		}
	}
}

// WithHasher replaces the KDF derivation. Test hook.
func WithHasher(fn func(plaintext string) (string, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.hashPassword = fn
		}
	}
}

// NewService constructs the credential store around durable storage and an
// explicitly owned verification cache.
func NewService(store Store, cache *Cache, opts ...Option) *Service {
	s := &Service{
		store:            store,
		cache:            cache,
		now:              time.Now,
		registrationOpen: true,
		slowGate:         make(chan struct{}, runtime.GOMAXPROCS(0)),
		slowCompare:      SlowCompare,
		hashPassword:     HashPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy exposes the configured validation policy.
func (s *Service) Policy() Policy { return s.policy }

func (s *Service) accountLock(id int64) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *Service) lookup(ctx context.Context, ref AccountRef) (*Account, error) {
	if ref.ID != 0 {
		return s.store.FindByID(ctx, ref.ID)
	}
	name := strings.TrimSpace(ref.Name)
	if name == "" {
		return nil, ErrNotFound
	}
	return s.store.FindBySafeName(ctx, SafeName(name))
}

// Account loads an account by reference. Read-only; used by profile views.
func (s *Service) Account(ctx context.Context, ref AccountRef) (*Account, error) {
	return s.lookup(ctx, ref)
}

// Verify checks a plaintext against the account's stored credential. The
// fast path compares against the cached digest; a cache miss pays the full
// KDF cost and, on success, primes the cache for the account's current hash.
func (s *Service) Verify(ctx context.Context, ref AccountRef, plaintext string) (VerifyResult, error) {
	account, err := s.lookup(ctx, ref)
	if err != nil {
		return Mismatch, err
	}
	return s.verifyAccount(ctx, account, plaintext)
}

func (s *Service) verifyAccount(ctx context.Context, account *Account, plaintext string) (VerifyResult, error) {
	mu := s.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	// The caller's snapshot may predate a rotation that committed before the
	// lock was acquired. The comparison and the cache key must be based on
	// the hash current under this lock, so it is re-read here.
	current, err := s.store.FindByID(ctx, account.ID)
	if err != nil {
		return Mismatch, err
	}
	account.PasswordHash = current.PasswordHash

	digest := FastDigest(plaintext)
	if cached, ok := s.cache.Get(account.PasswordHash); ok {
		obs.IncCacheLookup(true)
		if DigestsEqual(digest, cached) {
			return Match, nil
		}
		return Mismatch, nil
	}
	obs.IncCacheLookup(false)

	start := s.now()
	err = s.slowCheck(ctx, account.PasswordHash, digest)
	elapsed := s.now().Sub(start)
	obs.ObserveSlowCheck(elapsed)
	obs.Debug("slow credential check", map[string]any{
		"account_id":  account.ID,
		"duration_ms": elapsed.Milliseconds(),
		"outcome":     err == nil,
	})
	if err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return Mismatch, nil
		}
		return Mismatch, err
	}
	// A cache entry can only be created by passing the slow check once.
	s.cache.Put(account.PasswordHash, digest)
	return Match, nil
}

func (s *Service) slowCheck(ctx context.Context, storedHash string, digest []byte) error {
	select {
	case s.slowGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.slowGate }()
	return s.slowCompare(storedHash, digest)
}

func (s *Service) deriveHash(ctx context.Context, plaintext string) (string, error) {
	select {
	case s.slowGate <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.slowGate }()
	return s.hashPassword(plaintext)
}

// RotatePassword derives a new stored hash, persists it, and atomically (with
// respect to verification of the same account) swaps the cache entry: the old
// entry is evicted strictly before the new hash goes live, then the new pair
// is primed since the rotating user just proved possession of the plaintext.
func (s *Service) RotatePassword(ctx context.Context, ref AccountRef, newPlaintext string) error {
	account, err := s.lookup(ctx, ref)
	if err != nil {
		return err
	}
	return s.rotateAccount(ctx, account, newPlaintext)
}

func (s *Service) rotateAccount(ctx context.Context, account *Account, newPlaintext string) error {
	newHash, err := s.deriveHash(ctx, newPlaintext)
	if err != nil {
		return err
	}

	mu := s.accountLock(account.ID)
	mu.Lock()
	defer mu.Unlock()

	// Evict by the hash current under the lock, not the caller's snapshot;
	// the snapshot may have been superseded by a concurrent rotation.
	current, err := s.store.FindByID(ctx, account.ID)
	if err != nil {
		return err
	}
	s.cache.Evict(current.PasswordHash)
	if err := s.store.UpdatePassword(ctx, account.ID, newHash); err != nil {
		return err
	}
	account.PasswordHash = newHash
	s.cache.Put(newHash, FastDigest(newPlaintext))
	return nil
}

// Login authenticates an identifier/password pair and, if the account is
// verified and in good standing, returns a fresh authenticated session.
// The bot account can never log in.
func (s *Service) Login(ctx context.Context, identifier, plaintext string) (Session, error) {
	account, err := s.store.FindBySafeName(ctx, SafeName(identifier))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.IncLogin("not_found")
			obs.Debug("login failed", map[string]any{"identifier": identifier, "reason": "no such account"})
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	if account.ID == BotAccountID {
		obs.IncLogin("not_found")
		return Session{}, ErrNotFound
	}

	result, err := s.verifyAccount(ctx, account, plaintext)
	if err != nil {
		return Session{}, err
	}
	if result != Match {
		obs.IncLogin("mismatch")
		obs.Debug("login failed", map[string]any{"account_id": account.ID, "reason": "password incorrect"})
		return Session{}, ErrPasswordMismatch
	}
	if !account.Priv.IsVerified() {
		obs.IncLogin("unverified")
		obs.Debug("login failed", map[string]any{"account_id": account.ID, "reason": "not verified"})
		return Session{}, ErrUnverified
	}
	if !account.Priv.IsNormal() {
		obs.IncLogin("banned")
		obs.Debug("login failed", map[string]any{"account_id": account.ID, "reason": "banned"})
		return Session{}, ErrBanned
	}

	if err := s.store.TouchActivity(ctx, account.ID); err != nil {
		return Session{}, err
	}
	obs.IncLogin("match")
	return NewSession(account, s.now()), nil
}

// SessionStale reports whether the session was minted against a credential
// that has since been rotated. The transport layer rejects stale sessions so
// a retained token dies together with the password it was issued under, not
// only the cookie.
func (s *Service) SessionStale(ctx context.Context, session Session) (bool, error) {
	account, err := s.store.FindByID(ctx, session.AccountID)
	if err != nil {
		return true, err
	}
	if account.PasswordChangedAt.IsZero() && session.PasswordChangedAt.IsZero() {
		return false, nil
	}
	return !session.PasswordChangedAt.Equal(account.PasswordChangedAt), nil
}

// Register validates all inputs against current durable state and creates a
// new account awaiting verification, together with its eight per-mode stats
// rows. The new credential is primed into the cache so the first login skips
// the slow path.
func (s *Service) Register(ctx context.Context, name, email, plaintext, country string) (*Account, error) {
	if !s.registrationOpen {
		return nil, ErrRegistrationOff
	}
	if err := s.policy.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.policy.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePassword(plaintext); err != nil {
		return nil, err
	}

	safeName := SafeName(name)
	if taken, err := s.store.NameExists(ctx, safeName); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNameTaken
	}
	if taken, err := s.store.EmailExists(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := s.deriveHash(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	if country == "" {
		country = defaultCountry
	}
	account := &Account{
		Name:         name,
		SafeName:     safeName,
		Email:        email,
		PasswordHash: hash,
		Priv:         DefaultPrivileges,
		Country:      strings.ToLower(country),
	}
	if err := s.store.Create(ctx, account); err != nil {
		return nil, err
	}
	s.cache.Put(hash, FastDigest(plaintext))

	obs.Debug("account registered", map[string]any{"account_id": account.ID, "name": name})
	return account, nil
}

// ChangeIdentity updates display name and/or email after validating against
// current durable state. Name changes are a donor/staff perk. A successful
// change invalidates the session: the caller must force re-login.
func (s *Service) ChangeIdentity(ctx context.Context, session Session, newName, newEmail string) error {
	if !session.Authenticated() {
		return ErrNotAuthenticated
	}
	account, err := s.store.FindByID(ctx, session.AccountID)
	if err != nil {
		return err
	}

	nameChanged := newName != "" && newName != account.Name
	emailChanged := newEmail != "" && newEmail != account.Email
	if !nameChanged && !emailChanged {
		return ErrNoChange
	}

	// Both changes are validated in full before either one persists, so a
	// rejected email can never leave a half-applied rename behind.
	var newSafe string
	if nameChanged {
		if !account.Priv.HasAny(PrivDonator | PrivStaff) {
			return ErrPermissionDenied
		}
		if err := s.policy.ValidateName(newName); err != nil {
			return err
		}
		newSafe = SafeName(newName)
		if newSafe != account.SafeName {
			if taken, err := s.store.NameExists(ctx, newSafe); err != nil {
				return err
			} else if taken {
				return ErrNameTaken
			}
		}
	}
	if emailChanged {
		if err := s.policy.ValidateEmail(newEmail); err != nil {
			return err
		}
		if taken, err := s.store.EmailExists(ctx, newEmail); err != nil {
			return err
		} else if taken {
			return ErrEmailTaken
		}
	}

	if nameChanged {
		if err := s.store.UpdateName(ctx, account.ID, newName, newSafe); err != nil {
			return err
		}
	}
	if emailChanged {
		if err := s.store.UpdateEmail(ctx, account.ID, newEmail); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword verifies the old credential, applies the password policy to
// the new one, and rotates the stored hash. A successful change invalidates
// the session: the caller must force re-login.
func (s *Service) ChangePassword(ctx context.Context, session Session, oldPlaintext, newPlaintext, repeatPlaintext string) error {
	if !session.Authenticated() {
		return ErrNotAuthenticated
	}
	if newPlaintext != repeatPlaintext {
		return ErrRepeatMismatch
	}
	if err := s.policy.ValidateNewPassword(newPlaintext, oldPlaintext); err != nil {
		return err
	}

	account, err := s.store.FindByID(ctx, session.AccountID)
	if err != nil {
		return err
	}
	result, err := s.verifyAccount(ctx, account, oldPlaintext)
	if err != nil {
		return err
	}
	if result != Match {
		obs.Debug("password change failed", map[string]any{"account_id": account.ID, "reason": "old password incorrect"})
		return ErrPasswordMismatch
	}
	return s.rotateAccount(ctx, account, newPlaintext)
}
