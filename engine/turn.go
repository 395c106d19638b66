package engine

import (
	"fmt"

	"github.com/wfunc/landfluss/letters"
	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

// phaseContext exposes the phase entry effects to the state package.
type phaseContext struct {
	e *TurnEngine
}

func (p phaseContext) BeginTurn() error { return p.e.beginTurn() }
func (p phaseContext) SubmitSolution() { p.e.submitSolution() }
func (p phaseContext) CommitRound()    { p.e.commitRound() }

// beginTurn draws the round's letter and prepares the user store. A
// START_GAME starts over with the new config. Nothing changes on error.
func (e *TurnEngine) beginTurn() error {
	if e.starting != nil {
		config := e.starting.Clone()
		sequence := letters.New(config.Seed)
		if _, err := sequence.Draw(); err != nil {
			return err
		}
		e.config = config
		e.sequence = sequence
		e.users = make(map[string]*models.UserState)
		for _, id := range e.connectedIDs() {
			e.users[id] = models.NewUserState(config.Categories)
		}
	} else {
		if e.sequence == nil {
			return ErrGameNotStarted
		}
		if _, err := e.sequence.Draw(); err != nil {
			return err
		}
		e.round++
		for _, user := range e.users {
			user.ResetRound(e.config.Categories)
		}
		for _, id := range e.connectedIDs() {
			if _, ok := e.users[id]; !ok {
				e.users[id] = models.NewUserState(e.config.Categories)
			}
		}
	}

	e.touchSent = make(map[string]struct{})
	e.drafts = make(map[string]string)
	e.deadline = e.now().Add(e.countdown)
	e.scheduleCountdown()

	round, letter := e.round, e.sequence.Current()
	logger.Log.Infow("Round started", "round", round, "letter", letter.Upper(), "players", len(e.users))
	if e.hooks.RoundStarted != nil {
		e.emit(func() { e.hooks.RoundStarted(round, letter) })
	}
	return nil
}

func (e *TurnEngine) scheduleCountdown() {
	if e.countdownTimer != 0 {
		e.timers.RemoveTimer(e.countdownTimer)
		e.countdownTimer = 0
	}
	if e.hooks.CountdownFinished == nil || !e.deadline.After(e.now()) {
		return
	}
	round := e.round
	e.countdownTimer = e.timers.At(e.deadline, func() {
		e.mu.RLock()
		current := e.machine.Current() == models.StateGuess && e.round == round
		e.mu.RUnlock()
		if current {
			e.hooks.CountdownFinished(round)
		}
	})
}

// submitSolution publishes the local user's drafts once scoring starts. It
// runs inside the phase change and must not ask the machine for its phase.
func (e *TurnEngine) submitSolution() {
	if _, ok := e.users[e.userID()]; !ok {
		return
	}
	words := make(map[string]string, len(e.config.Categories))
	for _, category := range e.config.Categories {
		words[category] = e.drafts[category]
	}
	payload := protocol.Solution{Solution: models.SolutionEntries(words)}
	e.emit(func() {
		if err := e.messenger.Send(protocol.MsgTypeSolution, payload).Err(); err != nil {
			logger.Log.Errorw("Failed to send solution", "error", err)
		}
	})
}

// commitRound adds the round's points to every total.
func (e *TurnEngine) commitRound() {
	record := models.RoundRecord{
		GameID:     e.config.Seed,
		Round:      e.round,
		Letter:     e.sequence.Current(),
		Categories: e.config.Clone().Categories,
		CreatedAt:  e.now(),
	}
	for _, id := range sortedIDs(e.users) {
		user := e.users[id]
		points := user.RoundScore()
		user.TotalScore += points

		snapshot := user.Clone()
		record.Players = append(record.Players, models.PlayerResult{
			UserID:     id,
			Name:       e.userName(id),
			Words:      snapshot.Solutions,
			Scores:     snapshot.CurrentScores,
			RoundScore: points,
			TotalScore: user.TotalScore,
		})
	}
	logger.Log.Infow("Round committed", "round", record.Round, "letter", record.Letter.Upper())
	if e.hooks.RoundCommitted != nil {
		e.emit(func() { e.hooks.RoundCommitted(record) })
	}
}

func (e *TurnEngine) sendWelcome(target string) {
	payload := protocol.Welcome{Seq: e.seq, Config: e.config.Clone()}
	e.emit(func() {
		if err := e.messenger.SendTo(target, protocol.MsgTypeWelcome, payload).Err(); err != nil {
			logger.Log.Errorw("Failed to welcome user", "user", target, "error", err)
		}
	})
}

func (e *TurnEngine) sendGameState(target string) {
	payload := protocol.GameState{Snapshot: e.snapshot()}
	e.emit(func() {
		if err := e.messenger.SendTo(target, protocol.MsgTypeGameState, payload).Err(); err != nil {
			logger.Log.Errorw("Failed to send game state", "user", target, "error", err)
		}
	})
}

func (e *TurnEngine) rejected(msgType protocol.MsgType, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrMessageRejected, msgType, reason)
}
