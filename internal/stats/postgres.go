package stats

import (
	"context"
	"database/sql"
	"errors"
)

const (
	defaultLeaderboardLimit = 50
	maxLeaderboardLimit     = 100
)

var _ Service = (*PGService)(nil)

// PGService implements Service over the stats table, joining users for the
// public identity columns. Banned accounts (priv & 1 = 0) never appear on
// leaderboards.
type PGService struct {
	db *sql.DB
}

func NewPGService(db *sql.DB) *PGService {
	return &PGService{db: db}
}

func (s *PGService) ForAccount(ctx context.Context, accountID int64, mode Mode) (Row, error) {
	if !mode.Valid() {
		return Row{}, ErrInvalidMode
	}
	var r Row
	err := s.db.QueryRowContext(ctx,
		`select id, mode, total_score, ranked_score, pp, plays, accuracy, updated_at
		 from stats where id=$1 and mode=$2`,
		accountID, int(mode),
	).Scan(&r.AccountID, &r.Mode, &r.TotalScore, &r.RankedScore, &r.PP, &r.Plays, &r.Accuracy, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Row{}, ErrNotFound
		}
		return Row{}, err
	}
	return r, nil
}

func (s *PGService) Leaderboard(ctx context.Context, mode Mode, limit, offset int) ([]Entry, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`select s.id, s.mode, s.total_score, s.ranked_score, s.pp, s.plays, s.accuracy, s.updated_at,
		        u.name, u.country
		 from stats s
		 join users u on u.id = s.id
		 where s.mode=$1 and (u.priv & 1) = 1
		 order by s.pp desc, s.ranked_score desc
		 limit $2 offset $3`,
		int(mode), limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.AccountID, &e.Mode, &e.TotalScore, &e.RankedScore, &e.PP, &e.Plays, &e.Accuracy, &e.UpdatedAt,
			&e.Name, &e.Country,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
