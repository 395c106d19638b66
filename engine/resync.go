package engine

import (
	"fmt"
	"time"

	"github.com/wfunc/landfluss/letters"
	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

// Snapshot captures the full turn state as sent to a rejoining peer.
func (e *TurnEngine) Snapshot() models.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

func (e *TurnEngine) snapshot() models.Snapshot {
	snap := models.Snapshot{
		Seq:        e.seq,
		Config:     e.config.Clone(),
		State:      e.machine.Current(),
		Deadline:   e.deadline.UnixMilli(),
		Round:      e.round,
		UserStates: models.SerializeUserStates(e.users),
	}
	if e.sequence != nil {
		snap.CurrentLetter = e.sequence.Current()
		snap.UsedLetters = e.sequence.Used()
	}
	return snap
}

// Synced reports whether the engine holds the host's state. A peer that is
// not synced buffers every message until WELCOME or GAME_STATE arrives.
func (e *TurnEngine) Synced() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.synced
}

// Err returns the consistency failure that stopped the engine, if any.
func (e *TurnEngine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.failure
}

// resync brings an unsynced peer to the host's state, then applies the
// buffered messages the host had not applied yet.
func (e *TurnEngine) resync(msgType protocol.MsgType, payload []byte, meta protocol.Meta) error {
	switch msgType {
	case protocol.MsgTypeWelcome:
		msg, err := protocol.Decode[protocol.Welcome](msgType, payload)
		if err != nil {
			return err
		}
		e.config = msg.Config.Clone()
		e.seq = msg.Seq
		e.synced = true
		logger.Log.Infow("Welcomed by host", "seq", msg.Seq, "categories", len(msg.Config.Categories))
		if e.hooks.ConfigChanged != nil {
			config := e.config.Clone()
			e.emit(func() { e.hooks.ConfigChanged(config) })
		}
	case protocol.MsgTypeGameState:
		msg, err := protocol.Decode[protocol.GameState](msgType, payload)
		if err != nil {
			return err
		}
		if err := e.adopt(msg.Snapshot); err != nil {
			return err
		}
	default:
		return e.rejected(msgType, "not a sync message")
	}
	e.drain()
	if e.resuming {
		e.finishResume()
	}
	return nil
}

// requestState runs when the host itself reconnected. Guests kept playing
// while it was away, so the host buffers messages like any rejoining peer
// and adopts the state of the first guest that answers.
func (e *TurnEngine) requestState() {
	if len(e.others()) == 0 {
		return
	}
	logger.Log.Infow("Host reconnected, asking guests for game state", "seq", e.seq)
	e.synced = false
	e.backlog = nil
	e.resuming = true
	e.emit(func() {
		if err := e.messenger.Send(protocol.MsgTypeRequestState, protocol.RequestState{}).Err(); err != nil {
			logger.Log.Errorw("Failed to request game state", "error", err)
		}
	})

	if e.resumeTimer != 0 {
		e.timers.RemoveTimer(e.resumeTimer)
	}
	e.resumeTimer = e.timers.AddTimer(e.resumeTimeout, 0, e.resumeExpired)
}

// resumeExpired keeps the host's own state when no guest answered in time.
func (e *TurnEngine) resumeExpired() {
	e.mu.Lock()
	if e.resuming && !e.synced && e.failure == nil {
		logger.Log.Warnw("No guest sent its game state, keeping our own", "buffered", len(e.backlog))
		e.synced = true
		e.drain()
		e.finishResume()
	}
	effects := e.takeEffects()
	e.mu.Unlock()
	runEffects(effects)
}

// finishResume hands the host's state to every guest, so peers that joined
// while the host was away sync as well.
func (e *TurnEngine) finishResume() {
	e.resuming = false
	if e.resumeTimer != 0 {
		e.timers.RemoveTimer(e.resumeTimer)
		e.resumeTimer = 0
	}
	for _, id := range e.others() {
		e.sendGameState(id)
	}
}

// applyRequestState answers a resuming host with this peer's state.
func (e *TurnEngine) applyRequestState(sender string) error {
	if sender == "" || sender == e.userID() {
		return nil
	}
	e.sendGameState(sender)
	return nil
}

func (e *TurnEngine) drain() {
	backlog := e.backlog
	e.backlog = nil

	replayed := 0
	for _, m := range backlog {
		if m.meta.Seq != 0 && m.meta.Seq <= e.seq {
			continue
		}
		replayed++
		if err := e.apply(m.msgType, m.payload, m.meta); err != nil {
			logger.Log.Warnw("Buffered message failed", "type", m.msgType.String(), "seq", m.meta.Seq, "error", err)
		}
		if e.failure != nil {
			return
		}
	}
	if len(backlog) > 0 {
		logger.Log.Infow("Applied buffered messages", "buffered", len(backlog), "replayed", replayed)
	}
}

// adopt replaces the local state with snap. The letter sequence is rebuilt
// from the seed; a mismatch with the host's used letters is fatal.
func (e *TurnEngine) adopt(snap models.Snapshot) error {
	phase := e.phases.ByID(snap.State)
	if phase == nil {
		return e.rejected(protocol.MsgTypeGameState, fmt.Sprintf("unknown state %q", snap.State))
	}

	var sequence *letters.Sequence
	if snap.CurrentLetter != "" || len(snap.UsedLetters) != 0 {
		replayed, err := letters.Replay(snap.Config.Seed, snap.CurrentLetter, snap.UsedLetters)
		if err != nil {
			e.failure = err
			logger.Log.Errorw("Letter sequence diverged from host", "seed", snap.Config.Seed, "error", err)
			return fmt.Errorf("%w: %w", ErrDesynced, err)
		}
		sequence = replayed
	}

	sameTurn := snap.State == models.StateGuess && e.machine.Current() == models.StateGuess &&
		snap.Round == e.round && e.sequence != nil && snap.CurrentLetter == e.sequence.Current()
	if !sameTurn {
		e.drafts = make(map[string]string)
	}

	e.config = snap.Config.Clone()
	e.round = snap.Round
	e.deadline = time.UnixMilli(snap.Deadline)
	e.users = models.DeserializeUserStates(snap.UserStates)
	e.sequence = sequence
	e.touchSent = make(map[string]struct{})
	e.machine.Restore(phase)
	e.seq = snap.Seq
	e.synced = true

	if snap.State == models.StateGuess {
		e.scheduleCountdown()
	}
	logger.Log.Infow("Adopted game state", "state", snap.State, "round", snap.Round, "seq", snap.Seq)
	if e.hooks.Resynced != nil {
		e.emit(func() { e.hooks.Resynced(snap) })
	}
	return nil
}
