package state

import (
	"github.com/wfunc/landfluss/models"
)

// PhaseBase carries what every game phase shares.
type PhaseBase struct {
	ID   models.GameState
	Game GameContext
}

func (s *PhaseBase) GetID() models.GameState {
	return s.ID
}

func (s *PhaseBase) OnEnter() error {
	return nil
}

func (s *PhaseBase) OnExit() {}

// LobbyState is where players gather and edit the configuration.
type LobbyState struct {
	PhaseBase
}

func NewLobbyState(game GameContext) *LobbyState {
	return &LobbyState{PhaseBase{ID: models.StateLobby, Game: game}}
}

// GuessState is the word entry phase of a round.
type GuessState struct {
	PhaseBase
}

func NewGuessState(game GameContext) *GuessState {
	return &GuessState{PhaseBase{ID: models.StateGuess, Game: game}}
}

func (s *GuessState) OnEnter() error {
	return s.Game.BeginTurn()
}

// ScoringState is where players review and override the computed scores.
type ScoringState struct {
	PhaseBase
}

func NewScoringState(game GameContext) *ScoringState {
	return &ScoringState{PhaseBase{ID: models.StateScoring, Game: game}}
}

func (s *ScoringState) OnEnter() error {
	s.Game.SubmitSolution()
	return nil
}

// ScoresState shows the standings after everyone accepted the round.
type ScoresState struct {
	PhaseBase
}

func NewScoresState(game GameContext) *ScoresState {
	return &ScoresState{PhaseBase{ID: models.StateScores, Game: game}}
}

func (s *ScoresState) OnEnter() error {
	s.Game.CommitRound()
	return nil
}

// Phases bundles one instance of every phase bound to game.
type Phases struct {
	Lobby   *LobbyState
	Guess   *GuessState
	Scoring *ScoringState
	Scores  *ScoresState
}

// NewPhases builds the four phases for game.
func NewPhases(game GameContext) Phases {
	return Phases{
		Lobby:   NewLobbyState(game),
		Guess:   NewGuessState(game),
		Scoring: NewScoringState(game),
		Scores:  NewScoresState(game),
	}
}

// ByID returns the phase with the given id, or nil.
func (p Phases) ByID(id models.GameState) State {
	switch id {
	case models.StateLobby:
		return p.Lobby
	case models.StateGuess:
		return p.Guess
	case models.StateScoring:
		return p.Scoring
	case models.StateScores:
		return p.Scores
	}
	return nil
}

// NewGameMachine returns a machine in the lobby wired with the game's transitions.
// allAccepted guards the move from scoring to scores.
func NewGameMachine(p Phases, allAccepted func() bool) *BaseStateMachine {
	sm := NewBaseStateMachine(p.Lobby)
	_ = sm.AddTransition(p.Lobby, p.Guess, nil)
	_ = sm.AddTransition(p.Scores, p.Guess, nil)
	_ = sm.AddTransition(p.Guess, p.Scoring, nil)
	_ = sm.AddTransition(p.Scoring, p.Scores, allAccepted)
	return sm
}
