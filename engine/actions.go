package engine

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

// StartGame starts a game with the current config. Starting again from the
// scores screen draws a fresh seed. Host only.
func (e *TurnEngine) StartGame() *protocol.Completion {
	e.mu.RLock()
	config := e.config.Clone()
	current := e.machine.Current()
	e.mu.RUnlock()

	if !e.isHost() {
		return e.fail(protocol.MsgTypeStartGame, ErrNotHost)
	}
	if current != models.StateLobby && current != models.StateScores {
		return e.fail(protocol.MsgTypeStartGame, ErrWrongPhase)
	}
	if current == models.StateScores {
		config.Seed = uuid.NewString()
	}
	if err := ValidateConfig(config); err != nil {
		return e.fail(protocol.MsgTypeStartGame, err)
	}
	return e.send(protocol.MsgTypeStartGame, protocol.StartGame{Config: config})
}

// ChangeConfig proposes a new lobby config to every peer. The local config
// changes once the message comes back.
func (e *TurnEngine) ChangeConfig(config models.GameConfig) *protocol.Completion {
	if err := e.requirePhase(models.StateLobby); err != nil {
		return e.fail(protocol.MsgTypeChangeConfig, err)
	}
	return e.send(protocol.MsgTypeChangeConfig, protocol.ChangeConfig{Config: config.Clone()})
}

// SetCategory renames the category at index.
func (e *TurnEngine) SetCategory(index int, name string) *protocol.Completion {
	return e.editConfig(func(c *models.GameConfig) error {
		if index < 0 || index >= len(c.Categories) {
			return fmt.Errorf("%w: no category at %d", ErrInvalidConfig, index)
		}
		c.Categories[index] = name
		return nil
	})
}

// AddCategory appends a category.
func (e *TurnEngine) AddCategory(name string) *protocol.Completion {
	return e.editConfig(func(c *models.GameConfig) error {
		c.Categories = append(c.Categories, name)
		return nil
	})
}

// DeleteCategory removes the category at index.
func (e *TurnEngine) DeleteCategory(index int) *protocol.Completion {
	return e.editConfig(func(c *models.GameConfig) error {
		if index < 0 || index >= len(c.Categories) {
			return fmt.Errorf("%w: no category at %d", ErrInvalidConfig, index)
		}
		c.Categories = slices.Delete(c.Categories, index, index+1)
		return nil
	})
}

func (e *TurnEngine) editConfig(edit func(c *models.GameConfig) error) *protocol.Completion {
	config := e.Config()
	if err := edit(&config); err != nil {
		return e.fail(protocol.MsgTypeChangeConfig, err)
	}
	return e.ChangeConfig(config)
}

// NextRound starts the next round. Host only.
func (e *TurnEngine) NextRound() *protocol.Completion {
	if !e.isHost() {
		return e.fail(protocol.MsgTypeNextRound, ErrNotHost)
	}
	if err := e.requirePhase(models.StateScores); err != nil {
		return e.fail(protocol.MsgTypeNextRound, err)
	}
	return e.send(protocol.MsgTypeNextRound, protocol.NextRound{})
}

// EndRound ends the round for everyone. The local solution must be valid.
func (e *TurnEngine) EndRound() *protocol.Completion {
	e.mu.RLock()
	current := e.machine.Current()
	v, err := e.validation()
	e.mu.RUnlock()

	switch {
	case current != models.StateGuess:
		return e.fail(protocol.MsgTypeEndRound, ErrWrongPhase)
	case err != nil:
		return e.fail(protocol.MsgTypeEndRound, err)
	case !v.Valid():
		return e.fail(protocol.MsgTypeEndRound, fmt.Errorf("%w: %d categories with errors", ErrInvalidSolution, len(v.CategoryErrors)))
	}
	return e.send(protocol.MsgTypeEndRound, protocol.EndRound{})
}

// Skip toggles whether the local user gives up on the round.
func (e *TurnEngine) Skip() *protocol.Completion {
	e.mu.RLock()
	current := e.machine.Current()
	own, ok := e.users[e.userID()]
	skipped := ok && own.Skipped
	e.mu.RUnlock()

	if current != models.StateGuess {
		return e.fail(protocol.MsgTypeSkip, ErrWrongPhase)
	}
	if !ok {
		return e.fail(protocol.MsgTypeSkip, ErrNotParticipant)
	}
	return e.send(protocol.MsgTypeSkip, protocol.Skip{Skipped: !skipped})
}

// SetWord updates the local user's draft. The first edit of a category
// tells the other peers that the user started on it.
func (e *TurnEngine) SetWord(category, word string) error {
	e.mu.Lock()
	if e.machine.Current() != models.StateGuess {
		e.mu.Unlock()
		return ErrWrongPhase
	}
	own, ok := e.users[e.userID()]
	if !ok {
		e.mu.Unlock()
		return ErrNotParticipant
	}
	if !slices.Contains(e.config.Categories, category) {
		e.mu.Unlock()
		return fmt.Errorf("%w: unknown category %q", ErrInvalidConfig, category)
	}
	e.drafts[category] = word
	_, sent := e.touchSent[category]
	touch := !sent && !own.HasTouched(category)
	if touch {
		e.touchSent[category] = struct{}{}
	}
	e.mu.Unlock()

	if touch {
		return e.messenger.Send(protocol.MsgTypeTouchCategory, protocol.TouchCategory{Category: category}).Err()
	}
	return nil
}

// ScoreWord overrides one score cell. Every acceptance is reset.
func (e *TurnEngine) ScoreWord(userID, category string, score models.ScoreType) *protocol.Completion {
	if !score.Valid() {
		return e.fail(protocol.MsgTypeScoreWord, fmt.Errorf("%w: invalid score %d", ErrMessageRejected, score))
	}
	if err := e.requirePhase(models.StateScoring); err != nil {
		return e.fail(protocol.MsgTypeScoreWord, err)
	}
	return e.send(protocol.MsgTypeScoreWord, protocol.ScoreWord{UserID: userID, Category: category, ScoreType: score})
}

// AcceptScoring approves the round's score table.
func (e *TurnEngine) AcceptScoring() *protocol.Completion {
	if err := e.requirePhase(models.StateScoring); err != nil {
		return e.fail(protocol.MsgTypeAcceptScoring, err)
	}
	e.mu.RLock()
	_, ok := e.users[e.userID()]
	e.mu.RUnlock()
	if !ok {
		return e.fail(protocol.MsgTypeAcceptScoring, ErrNotParticipant)
	}
	return e.send(protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{})
}

func (e *TurnEngine) requirePhase(phase models.GameState) error {
	if current := e.machine.Current(); current != phase {
		return fmt.Errorf("%w: %s", ErrWrongPhase, current)
	}
	return nil
}

func (e *TurnEngine) fail(msgType protocol.MsgType, err error) *protocol.Completion {
	return protocol.Failed(fmt.Errorf("%s: %w", msgType, err))
}

// send broadcasts payload and tracks the message as loading until every
// peer processed it.
func (e *TurnEngine) send(msgType protocol.MsgType, payload any) *protocol.Completion {
	completion := e.messenger.Send(msgType, payload)
	select {
	case <-completion.Done():
		return completion
	default:
	}

	e.setLoading(msgType, 1)
	go func() {
		<-completion.Done()
		e.setLoading(msgType, -1)
	}()
	return completion
}

func (e *TurnEngine) setLoading(msgType protocol.MsgType, delta int) {
	e.mu.Lock()
	e.loading[msgType] += delta
	if e.loading[msgType] <= 0 {
		delete(e.loading, msgType)
	}
	loading := e.loadingList()
	e.mu.Unlock()

	if e.hooks.LoadingChanged != nil {
		e.hooks.LoadingChanged(loading)
	}
}
