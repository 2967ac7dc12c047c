package auth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// testHash mimics the KDF derivation cheaply so service tests can count slow
// path invocations without paying for bcrypt.
func testHash(plaintext string) string {
	return "kdf:" + string(FastDigest(plaintext))
}

type testEnv struct {
	svc   *Service
	store *InMemoryStore
	slow  *int32
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	var slow int32
	store := NewInMemoryStore()
	base := []Option{
		WithHasher(func(plaintext string) (string, error) {
			return testHash(plaintext), nil
		}),
		WithSlowCompare(func(storedHash string, digest []byte) error {
			atomic.AddInt32(&slow, 1)
			if storedHash == "kdf:"+string(digest) {
				return nil
			}
			return ErrPasswordMismatch
		}),
	}
	svc := NewService(store, NewCache(), append(base, opts...)...)
	return &testEnv{svc: svc, store: store, slow: &slow}
}

func (e *testEnv) slowCalls() int32 { return atomic.LoadInt32(e.slow) }

func (e *testEnv) seed(t *testing.T, name, email, password string, priv Privileges) *Account {
	t.Helper()
	a := &Account{
		Name:         name,
		SafeName:     SafeName(name),
		Email:        email,
		PasswordHash: testHash(password),
		Priv:         priv,
		Country:      "xx",
	}
	if err := e.store.Create(context.Background(), a); err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return a
}

func TestVerifyPrimesCacheAfterSlowCheck(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "Cookiezi", "c@example.com", "chocomint99", PrivNormal|PrivVerified)
	ctx := context.Background()

	result, err := env.svc.Verify(ctx, RefByID(a.ID), "chocomint99")
	if err != nil || result != Match {
		t.Fatalf("first verify = %v, %v", result, err)
	}
	if env.slowCalls() != 1 {
		t.Fatalf("slow calls after first verify = %d, want 1", env.slowCalls())
	}

	result, err = env.svc.Verify(ctx, RefByID(a.ID), "chocomint99")
	if err != nil || result != Match {
		t.Fatalf("second verify = %v, %v", result, err)
	}
	if env.slowCalls() != 1 {
		t.Fatalf("cache hit still paid for the slow path: %d calls", env.slowCalls())
	}
}

func TestVerifyMismatchIsNeverCached(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "player", "p@example.com", "right-pass1", PrivNormal|PrivVerified)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := env.svc.Verify(ctx, RefByID(a.ID), "wrong-pass1")
		if err != nil || result != Mismatch {
			t.Fatalf("wrong verify #%d = %v, %v", i, result, err)
		}
	}
	// Failed checks never create an entry, so each one pays full cost.
	if env.slowCalls() != 2 {
		t.Fatalf("slow calls = %d, want 2", env.slowCalls())
	}

	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "right-pass1"); result != Match {
		t.Fatal("correct password rejected")
	}
	// With the entry primed, a wrong password is caught on the fast path.
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "wrong-pass1"); result != Mismatch {
		t.Fatal("wrong password accepted after priming")
	}
	if env.slowCalls() != 3 {
		t.Fatalf("slow calls = %d, want 3", env.slowCalls())
	}
}

func TestVerifyUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.Verify(context.Background(), RefByName("ghost"), "whatever"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRotatePasswordSwapsCacheEntry(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "rotator", "r@example.com", "old-secret1", PrivNormal|PrivVerified)
	ctx := context.Background()

	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "old-secret1"); result != Match {
		t.Fatal("old password rejected before rotation")
	}
	calls := env.slowCalls()

	if err := env.svc.RotatePassword(ctx, RefByID(a.ID), "new-secret2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// The rotation primed the new pair, so neither check below needs the KDF.
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "new-secret2"); result != Match {
		t.Fatal("new password rejected after rotation")
	}
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "old-secret1"); result != Mismatch {
		t.Fatal("old password still accepted after rotation")
	}
	if env.slowCalls() != calls {
		t.Fatalf("slow calls went %d -> %d across rotation", calls, env.slowCalls())
	}

	// Durable state reflects the new credential.
	stored, err := env.store.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.PasswordHash != testHash("new-secret2") {
		t.Fatalf("stored hash not rotated: %s", stored.PasswordHash)
	}
}

func TestVerifyStaleSnapshotAfterRotation(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "racer", "race@example.com", "old-secret1", PrivNormal|PrivVerified)
	ctx := context.Background()

	// Snapshot loaded before a rotation commits, as a concurrent Verify
	// would hold it while waiting for the account lock.
	stale, err := env.store.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	oldHash := stale.PasswordHash

	if err := env.svc.RotatePassword(ctx, RefByID(a.ID), "new-secret2"); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// The check must run against the hash current under the lock, so the
	// superseded plaintext is rejected even through the stale snapshot.
	if result, err := env.svc.verifyAccount(ctx, stale, "old-secret1"); err != nil || result != Mismatch {
		t.Fatalf("verify with stale snapshot = %v, %v", result, err)
	}
	// And no entry may come back keyed by a hash no account stores.
	if _, ok := env.svc.cache.Get(oldHash); ok {
		t.Fatal("cache entry re-created for the superseded hash")
	}
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "new-secret2"); result != Match {
		t.Fatal("current credential rejected")
	}
}

func TestRotateStaleSnapshotEvictsCurrentHash(t *testing.T) {
	env := newTestEnv(t)
	a := env.seed(t, "rotator", "rot@example.com", "first-pass1", PrivNormal|PrivVerified)
	ctx := context.Background()

	stale, err := env.store.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := env.svc.RotatePassword(ctx, RefByID(a.ID), "second-pass2"); err != nil {
		t.Fatalf("first rotate: %v", err)
	}

	// A second rotation through the stale snapshot must evict the hash that
	// is current now, not the one the snapshot remembers.
	if err := env.svc.rotateAccount(ctx, stale, "third-pass3"); err != nil {
		t.Fatalf("second rotate: %v", err)
	}
	if _, ok := env.svc.cache.Get(testHash("second-pass2")); ok {
		t.Fatal("intermediate hash still cached after rotation")
	}
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "third-pass3"); result != Match {
		t.Fatal("latest credential rejected")
	}
	if result, _ := env.svc.Verify(ctx, RefByID(a.ID), "second-pass2"); result != Mismatch {
		t.Fatal("intermediate credential still accepted")
	}
}

func TestLoginOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bot := &Account{
		ID: BotAccountID, Name: "Seiran", SafeName: "seiran",
		Email: "bot@example.com", PasswordHash: testHash("irrelevant1"),
		Priv: PrivNormal | PrivVerified,
	}
	if err := env.store.Create(ctx, bot); err != nil {
		t.Fatalf("seed bot: %v", err)
	}
	env.seed(t, "fresh", "fresh@example.com", "fresh-pass1", PrivNormal)
	env.seed(t, "banned", "banned@example.com", "banned-pass1", PrivVerified)
	good := env.seed(t, "Good Player", "good@example.com", "good-pass1", PrivNormal|PrivVerified)

	cases := []struct {
		name       string
		identifier string
		password   string
		wantErr    error
	}{
		{"unknown account", "ghost", "whatever12", ErrNotFound},
		{"bot never logs in", "Seiran", "irrelevant1", ErrNotFound},
		{"wrong password", "Good Player", "bad-pass99", ErrPasswordMismatch},
		{"awaiting verification", "fresh", "fresh-pass1", ErrUnverified},
		{"banned", "banned", "banned-pass1", ErrBanned},
	}
	for _, tc := range cases {
		if _, err := env.svc.Login(ctx, tc.identifier, tc.password); !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.wantErr)
		}
	}

	session, err := env.svc.Login(ctx, "good player", "good-pass1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !session.Authenticated() || session.AccountID != good.ID {
		t.Fatalf("bad session: %+v", session)
	}
	if session.ID == "" {
		t.Fatal("session id not assigned")
	}
	if session.Name != "Good Player" {
		t.Fatalf("session name = %q", session.Name)
	}

	// Login bumps latest_activity.
	stored, _ := env.store.FindByID(ctx, good.ID)
	if stored.LatestActivity.IsZero() {
		t.Fatal("latest_activity not touched")
	}
}

func TestLoginNormalizesIdentifier(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Foo Bar", "fb@example.com", "some-pass12", PrivNormal|PrivVerified)

	for _, identifier := range []string{"Foo Bar", "foo bar", "foo_bar", "FOO_BAR"} {
		if _, err := env.svc.Login(context.Background(), identifier, "some-pass12"); err != nil {
			t.Fatalf("login as %q: %v", identifier, err)
		}
	}
}

func TestRegisterCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.svc.Register(ctx, "New Player", "new@example.com", "fresh-pass1", "JP")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.ID == 0 {
		t.Fatal("id not assigned")
	}
	if account.SafeName != "new_player" {
		t.Fatalf("safe name = %q", account.SafeName)
	}
	if account.Priv != DefaultPrivileges {
		t.Fatalf("priv = %v, want default", account.Priv)
	}
	if account.Country != "jp" {
		t.Fatalf("country = %q", account.Country)
	}

	// The credential is primed, so the first check skips the slow path.
	if result, _ := env.svc.Verify(ctx, RefByID(account.ID), "fresh-pass1"); result != Match {
		t.Fatal("fresh credential rejected")
	}
	if env.slowCalls() != 0 {
		t.Fatalf("slow calls = %d, want 0", env.slowCalls())
	}
}

func TestRegisterDefaultsCountry(t *testing.T) {
	env := newTestEnv(t)
	account, err := env.svc.Register(context.Background(), "stateless", "s@example.com", "fresh-pass1", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Country != "xx" {
		t.Fatalf("country = %q, want xx", account.Country)
	}
}

func TestRegisterConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, "Foo Bar", "foo@example.com", "fresh-pass1", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Separator style differs but the normalized name collides.
	if _, err := env.svc.Register(ctx, "foo_bar", "other@example.com", "fresh-pass1", ""); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("got %v, want ErrNameTaken", err)
	}
	if _, err := env.svc.Register(ctx, "distinct", "foo@example.com", "fresh-pass1", ""); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, WithPolicy(Policy{DisallowedNames: []string{"staff"}}))
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
		reason   Reason
	}{
		{"x", "ok@example.com", "fresh-pass1", ReasonNameLength},
		{"has_both sep", "ok@example.com", "fresh-pass1", ReasonNameSeparators},
		{"staff", "ok@example.com", "fresh-pass1", ReasonNameDisallowed},
		{"okname", "not-an-email", "fresh-pass1", ReasonEmailSyntax},
		{"okname", "ok@example.com", "short", ReasonPasswordLength},
		{"okname", "ok@example.com", "aaaabbbbcccc", ReasonPasswordSimple},
	}
	for _, tc := range cases {
		_, err := env.svc.Register(ctx, tc.name, tc.email, tc.password, "")
		ve, ok := IsValidation(err)
		if !ok || ve.Reason != tc.reason {
			t.Fatalf("register(%q,%q,%q) = %v, want %s", tc.name, tc.email, tc.password, err, tc.reason)
		}
	}
}

func TestRegisterDisabled(t *testing.T) {
	env := newTestEnv(t, WithRegistration(false))
	if _, err := env.svc.Register(context.Background(), "nobody", "n@example.com", "fresh-pass1", ""); !errors.Is(err, ErrRegistrationOff) {
		t.Fatalf("got %v, want ErrRegistrationOff", err)
	}
}

func TestChangeIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()

	normal := env.seed(t, "pleb", "pleb@example.com", "some-pass12", PrivNormal|PrivVerified)
	donor := env.seed(t, "whale", "whale@example.com", "some-pass12", PrivNormal|PrivVerified|PrivSupporter)

	if err := env.svc.ChangeIdentity(ctx, Session{}, "x", "y@example.com"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous change = %v", err)
	}

	normalSession := NewSession(normal, now)
	if err := env.svc.ChangeIdentity(ctx, normalSession, "", ""); !errors.Is(err, ErrNoChange) {
		t.Fatalf("empty change = %v", err)
	}
	if err := env.svc.ChangeIdentity(ctx, normalSession, "newname", ""); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("name change without perk = %v", err)
	}
	if err := env.svc.ChangeIdentity(ctx, normalSession, "", "pleb2@example.com"); err != nil {
		t.Fatalf("email change: %v", err)
	}
	if err := env.svc.ChangeIdentity(ctx, normalSession, "", "whale@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("taken email = %v", err)
	}

	donorSession := NewSession(donor, now)
	if err := env.svc.ChangeIdentity(ctx, donorSession, "Orca", ""); err != nil {
		t.Fatalf("donor rename: %v", err)
	}
	renamed, _ := env.store.FindByID(ctx, donor.ID)
	if renamed.Name != "Orca" || renamed.SafeName != "orca" {
		t.Fatalf("rename not applied: %+v", renamed)
	}
	if err := env.svc.ChangeIdentity(ctx, NewSession(renamed, now), "pleb", ""); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("taken name = %v", err)
	}
	// A case-only rename keeps the same normalized name and is always allowed
	// to proceed past the availability check.
	if err := env.svc.ChangeIdentity(ctx, NewSession(renamed, now), "ORCA", ""); err != nil {
		t.Fatalf("case-only rename: %v", err)
	}
}

func TestChangeIdentityCommitsNothingOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	donor := env.seed(t, "whale", "whale@example.com", "some-pass12", PrivNormal|PrivVerified|PrivSupporter)
	env.seed(t, "holder", "held@example.com", "some-pass12", PrivNormal|PrivVerified)
	session := NewSession(donor, time.Now())

	// A valid rename paired with a rejected email leaves the name untouched.
	err := env.svc.ChangeIdentity(ctx, session, "Orca", "not-an-email")
	if ve, ok := IsValidation(err); !ok || ve.Reason != ReasonEmailSyntax {
		t.Fatalf("got %v, want email syntax rejection", err)
	}
	stored, _ := env.store.FindByID(ctx, donor.ID)
	if stored.Name != "whale" || stored.SafeName != "whale" {
		t.Fatalf("rename committed despite email failure: %+v", stored)
	}

	// Same with an email someone else already holds.
	if err := env.svc.ChangeIdentity(ctx, session, "Orca", "held@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("got %v, want ErrEmailTaken", err)
	}
	stored, _ = env.store.FindByID(ctx, donor.ID)
	if stored.Name != "whale" {
		t.Fatalf("rename committed despite taken email: %+v", stored)
	}
}

func TestSessionStaleAfterRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "holder", "h@example.com", "old-secret1", PrivNormal|PrivVerified)

	session, err := env.svc.Login(ctx, "holder", "old-secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if stale, err := env.svc.SessionStale(ctx, session); err != nil || stale {
		t.Fatalf("fresh session reported stale: %v, %v", stale, err)
	}

	if err := env.svc.ChangePassword(ctx, session, "old-secret1", "new-secret2", "new-secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if stale, err := env.svc.SessionStale(ctx, session); err != nil || !stale {
		t.Fatalf("pre-rotation session survived: %v, %v", stale, err)
	}

	// A session minted after the rotation is current again.
	fresh, err := env.svc.Login(ctx, "holder", "new-secret2")
	if err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if stale, err := env.svc.SessionStale(ctx, fresh); err != nil || stale {
		t.Fatalf("fresh session reported stale after rotation: %v, %v", stale, err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.seed(t, "changer", "ch@example.com", "old-secret1", PrivNormal|PrivVerified)
	session := NewSession(account, time.Now())

	if err := env.svc.ChangePassword(ctx, Session{}, "old-secret1", "new-secret2", "new-secret2"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("anonymous change = %v", err)
	}
	if err := env.svc.ChangePassword(ctx, session, "old-secret1", "new-secret2", "different2"); !errors.Is(err, ErrRepeatMismatch) {
		t.Fatalf("repeat mismatch = %v", err)
	}
	if err := env.svc.ChangePassword(ctx, session, "old-secret1", "old-secret1", "old-secret1"); err == nil {
		t.Fatal("reuse of old password accepted")
	}
	if err := env.svc.ChangePassword(ctx, session, "wrong-old99", "new-secret2", "new-secret2"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("wrong old password = %v", err)
	}

	if err := env.svc.ChangePassword(ctx, session, "old-secret1", "new-secret2", "new-secret2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.svc.Login(ctx, "changer", "old-secret1"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("old password after change = %v", err)
	}
	if _, err := env.svc.Login(ctx, "changer", "new-secret2"); err != nil {
		t.Fatalf("new password after change: %v", err)
	}
}
