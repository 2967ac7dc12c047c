package stats

import (
	"context"
	"errors"
	"time"
)

// Mode identifies a (ruleset, mod-flavor) pair. The numbering is wire- and
// storage-stable: vanilla occupies 0-3, relax 4-6, autopilot 7.
type Mode int

const (
	VanillaStandard Mode = iota
	VanillaTaiko
	VanillaCatch
	VanillaMania
	RelaxStandard
	RelaxTaiko
	RelaxCatch
	AutopilotStandard
)

var modeNames = map[Mode]string{
	VanillaStandard:   "vn!std",
	VanillaTaiko:      "vn!taiko",
	VanillaCatch:      "vn!catch",
	VanillaMania:      "vn!mania",
	RelaxStandard:     "rx!std",
	RelaxTaiko:        "rx!taiko",
	RelaxCatch:        "rx!catch",
	AutopilotStandard: "ap!std",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether m is one of the eight playable modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// AllModes returns the eight modes every account gets a stats row for at
// registration.
func AllModes() []Mode {
	return []Mode{
		VanillaStandard, VanillaTaiko, VanillaCatch, VanillaMania,
		RelaxStandard, RelaxTaiko, RelaxCatch, AutopilotStandard,
	}
}

// Row holds the per-mode statistics of one account.
type Row struct {
	AccountID   int64     `json:"account_id"`
	Mode        Mode      `json:"mode"`
	TotalScore  int64     `json:"total_score"`
	RankedScore int64     `json:"ranked_score"`
	PP          int       `json:"pp"`
	Plays       int       `json:"plays"`
	Accuracy    float64   `json:"accuracy"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry is one leaderboard line: a stats row plus the owning account's
// public identity.
type Entry struct {
	Row
	Name    string `json:"name"`
	Country string `json:"country"`
}

var (
	ErrNotFound    = errors.New("stats: not found")
	ErrInvalidMode = errors.New("stats: invalid mode")
)

// Service exposes per-mode statistics reads. Writes happen at registration
// time through the account store's transaction; score submission lives in the
// game server, not here.
type Service interface {
	ForAccount(ctx context.Context, accountID int64, mode Mode) (Row, error)
	Leaderboard(ctx context.Context, mode Mode, limit, offset int) ([]Entry, error)
}
