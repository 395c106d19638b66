// models/models.go
package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GameState is the phase a peer's turn engine is in.
type GameState string

const (
	StateLobby   GameState = "lobby"
	StateGuess   GameState = "guess"
	StateScoring GameState = "scoring"
	StateScores  GameState = "scores"
)

// ScoreType classifies a submitted word. Its value is the number of points it earns.
type ScoreType int

const (
	ScoreNone      ScoreType = 0
	ScoreDuplicate ScoreType = 5
	ScoreUnique    ScoreType = 10
	ScoreOnly      ScoreType = 20
)

// Valid reports whether s is one of the four known score types.
func (s ScoreType) Valid() bool {
	switch s {
	case ScoreNone, ScoreDuplicate, ScoreUnique, ScoreOnly:
		return true
	}
	return false
}

func (s ScoreType) String() string {
	switch s {
	case ScoreNone:
		return "none"
	case ScoreDuplicate:
		return "duplicate"
	case ScoreUnique:
		return "unique"
	case ScoreOnly:
		return "only"
	}
	return "invalid"
}

// Letter is a single lowercase letter assigned to a round.
type Letter string

// Upper returns the display form of the letter.
func (l Letter) Upper() string {
	return strings.ToUpper(string(l))
}

// DefaultCategories are used when a host starts without configuring categories.
var DefaultCategories = []string{"Stadt", "Land", "Fluss"}

// GameConfig is the host-controlled configuration of a game.
type GameConfig struct {
	Seed       string   `json:"seed"`
	Categories []string `json:"categories"`
}

// NewGameConfig returns a configuration with a fresh random seed.
func NewGameConfig(categories ...string) GameConfig {
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	return GameConfig{
		Seed:       uuid.NewString(),
		Categories: slices.Clone(categories),
	}
}

// Clone returns a deep copy of the configuration.
func (c GameConfig) Clone() GameConfig {
	return GameConfig{Seed: c.Seed, Categories: slices.Clone(c.Categories)}
}

// User is an entry of the transport's user directory.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// UserState is one user's record for the active round.
type UserState struct {
	Solutions         map[string]string
	CurrentScores     map[string]ScoreType
	TouchedCategories map[string]struct{}
	TotalScore        int
	Skipped           bool
	HasAcceptedScore  bool
}

// NewUserState returns an empty state with a blank solution for every category.
func NewUserState(categories []string) *UserState {
	s := &UserState{
		Solutions:         make(map[string]string, len(categories)),
		CurrentScores:     make(map[string]ScoreType, len(categories)),
		TouchedCategories: make(map[string]struct{}),
	}
	for _, category := range categories {
		s.Solutions[category] = ""
	}
	return s
}

// ResetRound clears the per-round fields and keeps the total score.
func (s *UserState) ResetRound(categories []string) {
	s.Solutions = make(map[string]string, len(categories))
	s.CurrentScores = make(map[string]ScoreType, len(categories))
	s.TouchedCategories = make(map[string]struct{})
	s.Skipped = false
	s.HasAcceptedScore = false
	for _, category := range categories {
		s.Solutions[category] = ""
	}
}

// HasTouched reports whether the user started typing in category.
func (s *UserState) HasTouched(category string) bool {
	_, ok := s.TouchedCategories[category]
	return ok
}

// RoundScore sums the points of the current round.
func (s *UserState) RoundScore() int {
	total := 0
	for _, score := range s.CurrentScores {
		total += int(score)
	}
	return total
}

// Clone returns a deep copy.
func (s *UserState) Clone() *UserState {
	c := &UserState{
		Solutions:         make(map[string]string, len(s.Solutions)),
		CurrentScores:     make(map[string]ScoreType, len(s.CurrentScores)),
		TouchedCategories: make(map[string]struct{}, len(s.TouchedCategories)),
		TotalScore:        s.TotalScore,
		Skipped:           s.Skipped,
		HasAcceptedScore:  s.HasAcceptedScore,
	}
	for k, v := range s.Solutions {
		c.Solutions[k] = v
	}
	for k, v := range s.CurrentScores {
		c.CurrentScores[k] = v
	}
	for k := range s.TouchedCategories {
		c.TouchedCategories[k] = struct{}{}
	}
	return c
}

// RoundRecord is a committed round as kept in the history store.
type RoundRecord struct {
	GameID     string         `json:"game_id"`
	Round      int            `json:"round"`
	Letter     Letter         `json:"letter"`
	Categories []string       `json:"categories"`
	Players    []PlayerResult `json:"players"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PlayerResult is one player's line of a RoundRecord.
type PlayerResult struct {
	UserID     string               `json:"user_id"`
	Name       string               `json:"name"`
	Words      map[string]string    `json:"words"`
	Scores     map[string]ScoreType `json:"scores"`
	RoundScore int                  `json:"round_score"`
	TotalScore int                  `json:"total_score"`
}

// Standing is a player's aggregate over all recorded rounds of a game.
type Standing struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Rounds int    `json:"rounds"`
	Points int    `json:"points"`
}
