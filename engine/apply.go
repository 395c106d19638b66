package engine

import (
	"fmt"
	"slices"

	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
	"github.com/wfunc/landfluss/scoring"
	"github.com/wfunc/landfluss/state"
)

// ApplyMessage applies one delivered protocol message. Messages the current
// phase does not accept are rejected with ErrMessageRejected and change
// nothing. Once the engine diverged every message fails with ErrDesynced.
func (e *TurnEngine) ApplyMessage(msgType protocol.MsgType, payload []byte, meta protocol.Meta) error {
	e.mu.Lock()
	err := e.receive(msgType, payload, meta)
	effects := e.takeEffects()
	e.mu.Unlock()

	runEffects(effects)
	return err
}

func (e *TurnEngine) receive(msgType protocol.MsgType, payload []byte, meta protocol.Meta) error {
	if e.failure != nil {
		return fmt.Errorf("%w: %w", ErrDesynced, e.failure)
	}
	if meta.Seq != 0 && meta.Seq <= e.seq {
		return nil
	}
	if !e.synced {
		switch msgType {
		case protocol.MsgTypeWelcome, protocol.MsgTypeGameState:
			return e.resync(msgType, payload, meta)
		}
		e.backlog = append(e.backlog, bufferedMessage{msgType: msgType, payload: payload, meta: meta})
		return nil
	}
	return e.apply(msgType, payload, meta)
}

func (e *TurnEngine) apply(msgType protocol.MsgType, payload []byte, meta protocol.Meta) error {
	prev := e.seq
	if meta.Seq != 0 {
		e.seq = meta.Seq
	}

	switch msgType {
	case protocol.MsgTypeWelcome:
		return e.applyWelcome(payload)
	case protocol.MsgTypeChangeConfig:
		return e.applyChangeConfig(payload)
	case protocol.MsgTypeStartGame:
		return e.applyStartGame(payload)
	case protocol.MsgTypeNextRound:
		return e.applyNextRound()
	case protocol.MsgTypeEndRound:
		return e.applyEndRound(meta.Sender)
	case protocol.MsgTypeSolution:
		return e.applySolution(payload, meta.Sender)
	case protocol.MsgTypeTouchCategory:
		return e.applyTouchCategory(payload, meta.Sender)
	case protocol.MsgTypeSkip:
		return e.applySkip(payload, meta.Sender)
	case protocol.MsgTypeScoreWord:
		return e.applyScoreWord(payload)
	case protocol.MsgTypeAcceptScoring:
		return e.applyAcceptScoring(meta.Sender)
	case protocol.MsgTypeGameState:
		return e.applyGameState(payload, meta, prev)
	case protocol.MsgTypeRequestState:
		return e.applyRequestState(meta.Sender)
	}
	return e.rejected(msgType, "unknown message type")
}

// expect rejects msgType unless the engine is in one of phases.
func (e *TurnEngine) expect(msgType protocol.MsgType, phases ...models.GameState) error {
	current := e.machine.Current()
	if slices.Contains(phases, current) {
		return nil
	}
	return e.rejected(msgType, "not accepted in "+string(current))
}

// sender returns the state of a participating sender.
func (e *TurnEngine) sender(msgType protocol.MsgType, id string) (*models.UserState, error) {
	user, ok := e.users[id]
	if !ok {
		return nil, e.rejected(msgType, fmt.Sprintf("user %q has no state", id))
	}
	return user, nil
}

func (e *TurnEngine) transition(to state.State) error {
	from := e.machine.Current()
	if err := e.machine.ChangeState(to); err != nil {
		return err
	}
	if e.hooks.StateChanged != nil {
		e.emit(func() { e.hooks.StateChanged(from, to.GetID()) })
	}
	return nil
}

func (e *TurnEngine) applyWelcome(payload []byte) error {
	msg, err := protocol.Decode[protocol.Welcome](protocol.MsgTypeWelcome, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeWelcome, models.StateLobby); err != nil {
		return err
	}
	e.setConfig(msg.Config)
	return nil
}

func (e *TurnEngine) applyChangeConfig(payload []byte) error {
	msg, err := protocol.Decode[protocol.ChangeConfig](protocol.MsgTypeChangeConfig, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeChangeConfig, models.StateLobby); err != nil {
		return err
	}
	e.setConfig(msg.Config)
	return nil
}

func (e *TurnEngine) setConfig(config models.GameConfig) {
	e.config = config.Clone()
	if e.hooks.ConfigChanged != nil {
		config := e.config.Clone()
		e.emit(func() { e.hooks.ConfigChanged(config) })
	}
}

func (e *TurnEngine) applyStartGame(payload []byte) error {
	msg, err := protocol.Decode[protocol.StartGame](protocol.MsgTypeStartGame, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeStartGame, models.StateLobby, models.StateScores); err != nil {
		return err
	}
	if err := ValidateConfig(msg.Config); err != nil {
		return e.rejected(protocol.MsgTypeStartGame, err.Error())
	}

	e.starting = &msg.Config
	defer func() { e.starting = nil }()
	return e.transition(e.phases.Guess)
}

func (e *TurnEngine) applyNextRound() error {
	if err := e.expect(protocol.MsgTypeNextRound, models.StateScores); err != nil {
		return err
	}
	return e.transition(e.phases.Guess)
}

func (e *TurnEngine) applyEndRound(sender string) error {
	if err := e.expect(protocol.MsgTypeEndRound, models.StateGuess); err != nil {
		return err
	}
	return e.endRound(sender)
}

func (e *TurnEngine) endRound(endedBy string) error {
	if err := e.transition(e.phases.Scoring); err != nil {
		return err
	}
	if e.hooks.RoundEnded != nil {
		e.emit(func() { e.hooks.RoundEnded(endedBy) })
	}
	return nil
}

// applySolution stores the sender's words and scores every category again.
func (e *TurnEngine) applySolution(payload []byte, sender string) error {
	msg, err := protocol.Decode[protocol.Solution](protocol.MsgTypeSolution, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeSolution, models.StateGuess, models.StateScoring); err != nil {
		return err
	}
	user, err := e.sender(protocol.MsgTypeSolution, sender)
	if err != nil {
		return err
	}
	user.Solutions = models.SolutionMap(msg.Solution)

	if e.machine.Current() == models.StateScoring {
		e.precalculateScores()
	}
	return nil
}

func (e *TurnEngine) precalculateScores() {
	solutions := make(map[string]map[string]string, len(e.users))
	for id, user := range e.users {
		solutions[id] = user.Solutions
	}
	for id, scores := range scoring.ScoreRound(e.config.Categories, solutions) {
		e.users[id].CurrentScores = scores
	}
}

func (e *TurnEngine) applyTouchCategory(payload []byte, sender string) error {
	msg, err := protocol.Decode[protocol.TouchCategory](protocol.MsgTypeTouchCategory, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeTouchCategory, models.StateGuess); err != nil {
		return err
	}
	user, err := e.sender(protocol.MsgTypeTouchCategory, sender)
	if err != nil {
		return err
	}
	user.TouchedCategories[msg.Category] = struct{}{}
	if e.hooks.CategoryTouched != nil {
		e.emit(func() { e.hooks.CategoryTouched(sender, msg.Category) })
	}
	return nil
}

func (e *TurnEngine) applySkip(payload []byte, sender string) error {
	msg, err := protocol.Decode[protocol.Skip](protocol.MsgTypeSkip, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeSkip, models.StateGuess); err != nil {
		return err
	}
	user, err := e.sender(protocol.MsgTypeSkip, sender)
	if err != nil {
		return err
	}
	user.Skipped = msg.Skipped
	if e.hooks.SkipChanged != nil {
		e.emit(func() { e.hooks.SkipChanged(sender, msg.Skipped) })
	}

	if e.allSkipped() {
		return e.endRound("")
	}
	return nil
}

func (e *TurnEngine) applyScoreWord(payload []byte) error {
	msg, err := protocol.Decode[protocol.ScoreWord](protocol.MsgTypeScoreWord, payload)
	if err != nil {
		return err
	}
	if err := e.expect(protocol.MsgTypeScoreWord, models.StateScoring); err != nil {
		return err
	}
	if !msg.ScoreType.Valid() {
		return e.rejected(protocol.MsgTypeScoreWord, fmt.Sprintf("invalid score %d", msg.ScoreType))
	}
	if !slices.Contains(e.config.Categories, msg.Category) {
		return e.rejected(protocol.MsgTypeScoreWord, fmt.Sprintf("unknown category %q", msg.Category))
	}
	user, ok := e.users[msg.UserID]
	if !ok {
		return e.rejected(protocol.MsgTypeScoreWord, fmt.Sprintf("user %q has no state", msg.UserID))
	}

	user.CurrentScores[msg.Category] = msg.ScoreType
	for _, u := range e.users {
		u.HasAcceptedScore = false
	}
	if e.hooks.ScoreChanged != nil {
		e.emit(func() { e.hooks.ScoreChanged(msg.UserID, msg.Category, msg.ScoreType) })
	}
	return nil
}

func (e *TurnEngine) applyAcceptScoring(sender string) error {
	if err := e.expect(protocol.MsgTypeAcceptScoring, models.StateScoring); err != nil {
		return err
	}
	user, err := e.sender(protocol.MsgTypeAcceptScoring, sender)
	if err != nil {
		return err
	}
	user.HasAcceptedScore = true

	waiting := e.notAccepted()
	if e.hooks.ScoringAccepted != nil {
		waitingForSelf := len(waiting) == 1 && waiting[0] == e.userID()
		e.emit(func() { e.hooks.ScoringAccepted(sender, waitingForSelf) })
	}
	if len(waiting) != 0 || !e.machine.CanChangeState(models.StateScores) {
		return nil
	}
	return e.transition(e.phases.Scores)
}

// applyGameState adopts a snapshot unless it misses messages this peer
// already applied.
func (e *TurnEngine) applyGameState(payload []byte, meta protocol.Meta, applied uint64) error {
	msg, err := protocol.Decode[protocol.GameState](protocol.MsgTypeGameState, payload)
	if err != nil {
		return err
	}
	if msg.Seq < applied {
		logger.Log.Infow("Ignoring stale game state", "snapshot_seq", msg.Seq, "seq", applied, "sender", meta.Sender)
		return nil
	}
	if err := e.adopt(msg.Snapshot); err != nil {
		return err
	}
	e.seq = max(e.seq, meta.Seq)
	return nil
}
