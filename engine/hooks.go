package engine

import (
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

// Hooks are notification points for audio, UI and persistence collaborators.
// Every field is optional. Hooks run on the goroutine that applied the
// message, after the engine lock is released, so they may read the engine.
type Hooks struct {
	RoundStarted      func(round int, letter models.Letter)
	CountdownFinished func(round int)
	CategoryTouched   func(userID, category string)
	SkipChanged       func(userID string, skipped bool)
	// RoundEnded reports who ended the round. endedBy is empty when every
	// participant skipped.
	RoundEnded func(endedBy string)
	// ScoreChanged fires on a score override. Every acceptance was reset.
	ScoreChanged func(userID, category string, score models.ScoreType)
	// ScoringAccepted fires per acceptance. waitingForSelf is true when the
	// local user is the only one left to accept.
	ScoringAccepted func(userID string, waitingForSelf bool)
	RoundCommitted  func(record models.RoundRecord)
	StateChanged    func(from, to models.GameState)
	ConfigChanged   func(config models.GameConfig)
	Resynced        func(snapshot models.Snapshot)
	UsersChanged    func(event protocol.Event, user models.User)
	LoadingChanged  func(loading []protocol.MsgType)
}
