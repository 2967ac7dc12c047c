package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"seiran.gg/internal/stats"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `id, name, safe_name, email, pw_bcrypt, priv, country, silence_end, creation_time, latest_activity, pw_changed_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Name, &a.SafeName, &a.Email, &a.PasswordHash,
		&a.Priv, &a.Country, &a.SilenceEnd, &a.CreatedAt, &a.LatestActivity,
		&a.PasswordChangedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) FindByID(ctx context.Context, id int64) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where id=$1`, id)
	return scanAccount(row)
}

func (s *PGStore) FindBySafeName(ctx context.Context, safeName string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where safe_name=$1`, safeName)
	return scanAccount(row)
}

func (s *PGStore) NameExists(ctx context.Context, safeName string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`select 1 from users where safe_name=$1`, safeName).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`select 1 from users where email=$1`, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create inserts the users row and the eight per-mode stats rows in a single
// transaction, so an account can never exist without its stats.
func (s *PGStore) Create(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.LatestActivity = now
	a.PasswordChangedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx,
		`insert into users(name, safe_name, email, pw_bcrypt, priv, country, silence_end, creation_time, latest_activity, pw_changed_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) returning id`,
		a.Name, a.SafeName, a.Email, a.PasswordHash, a.Priv, a.Country, a.SilenceEnd, a.CreatedAt, a.LatestActivity, a.PasswordChangedAt,
	).Scan(&a.ID)
	if err != nil {
		return translateUniqueViolation(err)
	}

	for _, mode := range stats.AllModes() {
		if _, err := tx.ExecContext(ctx,
			`insert into stats(id, mode) values($1,$2)`, a.ID, int(mode)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set pw_bcrypt=$1, pw_changed_at=$2 where id=$3`,
		passwordHash, time.Now().UTC(), id)
	return err
}

func (s *PGStore) UpdateName(ctx context.Context, id int64, name, safeName string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set name=$1, safe_name=$2 where id=$3`, name, safeName, id)
	return translateUniqueViolation(err)
}

func (s *PGStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set email=$1 where id=$2`, email, id)
	return translateUniqueViolation(err)
}

func (s *PGStore) TouchActivity(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`update users set latest_activity=$1 where id=$2`, time.Now().UTC(), id)
	return err
}

// translateUniqueViolation maps constraint violations on safe_name/email to
// the conflict errors callers report. The constraints are the authoritative
// uniqueness guard; availability pre-checks only exist to fail fast.
func translateUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_safe_name_key":
			return ErrNameTaken
		case "users_email_key":
			return ErrEmailTaken
		}
	}
	return err
}
