package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "seiran"

// ErrInvalidToken indicates a session token failed validation.
var ErrInvalidToken = errors.New("auth: invalid session token")

// sessionClaims is the JWT payload a Session round-trips through. The web
// layer owns where the token lives (cookie, header); this codec only defines
// the mapping.
type sessionClaims struct {
	SessionID  string `json:"sid"`
	AccountID  int64  `json:"account_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Priv       int32  `json:"priv"`
	SilenceEnd int64  `json:"silence_end,omitempty"`
	// PwChangedAt pins the token to the credential generation it was minted
	// under (unix nanoseconds); a rotation makes older tokens stale.
	PwChangedAt int64 `json:"pw_changed_at,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies session tokens with HS256. Constructed once
// at startup from the configured secret; never a hidden global.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec. Secret must be non-empty; ttl must be
// positive.
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: session secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session ttl must be greater than zero")
	}
	return &TokenCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Mint signs the session into a compact token.
func (c *TokenCodec) Mint(session Session) (string, time.Time, error) {
	if !session.Authenticated() {
		return "", time.Time{}, ErrNotAuthenticated
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := sessionClaims{
		SessionID:  session.ID,
		AccountID:  session.AccountID,
		Name:       session.Name,
		Email:      session.Email,
		Priv:       int32(session.Priv),
		SilenceEnd: session.SilenceEnd,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   session.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if !session.PasswordChangedAt.IsZero() {
		claims.PwChangedAt = session.PasswordChangedAt.UnixNano()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and reconstructs the Session it carries.
func (c *TokenCodec) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(c.now))
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.AccountID == 0 || claims.SessionID == "" {
		return Session{}, ErrInvalidToken
	}
	session := Session{
		ID:         claims.SessionID,
		AccountID:  claims.AccountID,
		Name:       claims.Name,
		Email:      claims.Email,
		Priv:       Privileges(claims.Priv),
		SilenceEnd: claims.SilenceEnd,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.PwChangedAt != 0 {
		session.PasswordChangedAt = time.Unix(0, claims.PwChangedAt).UTC()
	}
	return session, nil
}
