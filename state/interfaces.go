// state/interfaces.go
package state

// GameContext is implemented by the turn engine. Phases call back into it on
// entry, which keeps the engine and the phase objects free of an import cycle.
type GameContext interface {
	// BeginTurn draws the round's letter and resets per-round user state.
	BeginTurn() error
	// SubmitSolution publishes the local user's words for scoring.
	SubmitSolution()
	// CommitRound adds the round's points to every total.
	CommitRound()
}
