// Package engine implements the replicated turn engine of the game.
//
// A TurnEngine is changed only by protocol messages delivered through its
// transport. Every peer runs one engine and applies the same messages in the
// same order, so every peer ends up in the same state without a central
// authority. Word drafts of the local user are the single exception.
package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/landfluss/letters"
	"github.com/wfunc/landfluss/logger"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
	"github.com/wfunc/landfluss/state"
	"github.com/wfunc/landfluss/timer"
)

var (
	ErrGameNotStarted  = errors.New("engine: game not started")
	ErrNotHost         = errors.New("engine: only the host can do this")
	ErrNotParticipant  = errors.New("engine: local user does not take part in this round")
	ErrWrongPhase      = errors.New("engine: not possible in the current phase")
	ErrMessageRejected = errors.New("engine: message rejected")
	ErrDesynced        = errors.New("engine: replicated state diverged")
	ErrInvalidSolution = errors.New("engine: solution is not valid")
	ErrInvalidConfig   = errors.New("engine: invalid game config")
)

// DefaultCountdown is the time between the start of a round and word entry.
const DefaultCountdown = 8 * time.Second

// DefaultResumeTimeout is how long a reconnected host waits for a guest's
// game state before it goes on with its own.
const DefaultResumeTimeout = 3 * time.Second

// Options configure a TurnEngine. The zero value is usable.
type Options struct {
	// Config is the initial lobby configuration. Defaults to models.NewGameConfig().
	Config *models.GameConfig
	// Countdown defaults to DefaultCountdown.
	Countdown time.Duration
	// ResumeTimeout defaults to DefaultResumeTimeout.
	ResumeTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
	// Timers fires the countdown hook. The engine creates and owns one when nil.
	Timers *timer.TimerManager
	Hooks  Hooks
}

type bufferedMessage struct {
	msgType protocol.MsgType
	payload []byte
	meta    protocol.Meta
}

// TurnEngine is one peer's replica of the game.
type TurnEngine struct {
	mu sync.RWMutex

	transport protocol.Transport
	messenger *protocol.Messenger
	phases    state.Phases
	machine   *state.BaseStateMachine
	hooks     Hooks

	timers         *timer.TimerManager
	ownTimers      bool
	countdownTimer int64
	countdown      time.Duration
	now            func() time.Time

	config   models.GameConfig
	round    int
	deadline time.Time
	sequence *letters.Sequence
	users    map[string]*models.UserState

	// seq is the relay sequence number of the last applied message.
	seq     uint64
	synced  bool
	backlog []bufferedMessage
	failure error

	// resuming is set while a reconnected host waits for a guest's state.
	resuming      bool
	resumeTimer   int64
	resumeTimeout time.Duration

	// drafts are the local user's words for the running round. They stay
	// local until the SOLUTION message.
	drafts map[string]string

	// starting carries the config of a START_GAME into BeginTurn.
	starting  *models.GameConfig
	touchSent map[string]struct{}
	loading   map[protocol.MsgType]int
	effects   []func()
}

// NewTurnEngine builds an engine in the lobby and subscribes it to every
// message and user event of t. A host starts in sync; any other peer buffers
// messages until the host's WELCOME or GAME_STATE arrives.
func NewTurnEngine(t protocol.Transport, opts Options) *TurnEngine {
	e := &TurnEngine{
		transport: t,
		messenger: protocol.NewMessenger(t),
		hooks:     opts.Hooks,
		timers:    opts.Timers,
		countdown: opts.Countdown,
		now:       opts.Now,
		users:     make(map[string]*models.UserState),
		drafts:    make(map[string]string),
		touchSent: make(map[string]struct{}),
		loading:   make(map[protocol.MsgType]int),

		resumeTimeout: opts.ResumeTimeout,
	}
	if e.countdown <= 0 {
		e.countdown = DefaultCountdown
	}
	if e.resumeTimeout <= 0 {
		e.resumeTimeout = DefaultResumeTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.timers == nil {
		e.timers = timer.NewTimerManager()
		e.ownTimers = true
	}
	if opts.Config != nil {
		e.config = opts.Config.Clone()
	} else {
		e.config = models.NewGameConfig()
	}
	e.deadline = e.now()
	e.phases = state.NewPhases(phaseContext{e})
	e.machine = state.NewGameMachine(e.phases, e.allAccepted)
	e.synced = t == nil || t.IsHost()

	if t != nil {
		_ = e.messenger.SubscribeAll(e.handleMessage)
		t.On(protocol.EventUserConnect, e.userEvent(protocol.EventUserConnect))
		t.On(protocol.EventUserDisconnect, e.userEvent(protocol.EventUserDisconnect))
		t.On(protocol.EventUserUpdate, e.userEvent(protocol.EventUserUpdate))
		t.On(protocol.EventUserReconnect, e.userEvent(protocol.EventUserReconnect))
	}
	return e
}

// Close stops the engine's own timers.
func (e *TurnEngine) Close() {
	if e.ownTimers {
		e.timers.Stop()
	}
}

func (e *TurnEngine) handleMessage(msgType protocol.MsgType, payload []byte, meta protocol.Meta) {
	err := e.ApplyMessage(msgType, payload, meta)
	switch {
	case err == nil:
	case errors.Is(err, ErrMessageRejected):
		logger.Log.Warnw("Message rejected", "type", msgType.String(), "sender", meta.Sender, "seq", meta.Seq, "error", err)
	default:
		logger.Log.Errorw("Failed to apply message", "type", msgType.String(), "sender", meta.Sender, "seq", meta.Seq, "error", err)
	}
}

func (e *TurnEngine) userEvent(event protocol.Event) protocol.UserHandler {
	return func(user models.User) {
		e.mu.Lock()
		e.onUserEvent(event, user)
		effects := e.takeEffects()
		e.mu.Unlock()
		runEffects(effects)
	}
}

func (e *TurnEngine) onUserEvent(event protocol.Event, user models.User) {
	self := e.userID()
	host := e.transport.IsHost()

	switch event {
	case protocol.EventUserConnect:
		if host && user.ID != self {
			if e.machine.Current() == models.StateLobby {
				e.sendWelcome(user.ID)
			} else {
				e.sendGameState(user.ID)
			}
		}
	case protocol.EventUserReconnect:
		switch {
		case user.ID == self && !host:
			logger.Log.Infow("Reconnected, waiting for game state", "user", self, "seq", e.seq)
			e.synced = false
			e.backlog = nil
		case user.ID == self:
			e.requestState()
		case host && user.ID != self:
			e.sendGameState(user.ID)
		}
	case protocol.EventUserDisconnect:
		e.settle()
	}
	if e.hooks.UsersChanged != nil {
		e.emit(func() { e.hooks.UsersChanged(event, user) })
	}
}

// emit queues f to run once the engine lock is released.
func (e *TurnEngine) emit(f func()) {
	e.effects = append(e.effects, f)
}

func (e *TurnEngine) takeEffects() []func() {
	effects := e.effects
	e.effects = nil
	return effects
}

func runEffects(effects []func()) {
	for _, effect := range effects {
		effect()
	}
}

func (e *TurnEngine) userID() string {
	if e.transport == nil {
		return ""
	}
	return e.transport.UserID()
}

func (e *TurnEngine) isHost() bool {
	return e.transport != nil && e.transport.IsHost()
}

// connectedIDs lists the ids of all connected users.
func (e *TurnEngine) connectedIDs() []string {
	if e.transport == nil {
		return nil
	}
	users := e.transport.CurrentUsers()
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

// participants lists connected users that have a state for the round.
// Users that joined mid-round watch until the next round starts.
func (e *TurnEngine) participants() []string {
	var ids []string
	for _, id := range e.connectedIDs() {
		if _, ok := e.users[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (e *TurnEngine) userName(id string) string {
	if e.transport == nil {
		return ""
	}
	for _, u := range e.transport.CurrentUsers() {
		if u.ID == id {
			return u.Name
		}
	}
	return ""
}

// others lists the connected users except the local one.
func (e *TurnEngine) others() []string {
	self := e.userID()
	var ids []string
	for _, id := range e.connectedIDs() {
		if id != self {
			ids = append(ids, id)
		}
	}
	return ids
}

// settle ends a phase whose last pending participant just left. Every peer
// sees the disconnect at the same point of the message stream.
func (e *TurnEngine) settle() {
	if !e.synced || e.failure != nil {
		return
	}
	var err error
	switch e.machine.Current() {
	case models.StateGuess:
		if e.allSkipped() {
			err = e.endRound("")
		}
	case models.StateScoring:
		if e.machine.CanChangeState(models.StateScores) {
			err = e.transition(e.phases.Scores)
		}
	}
	if err != nil {
		logger.Log.Errorw("Failed to move on after a disconnect", "state", e.machine.Current(), "error", err)
	}
}

func (e *TurnEngine) allSkipped() bool {
	ids := e.participants()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !e.users[id].Skipped {
			return false
		}
	}
	return true
}

func (e *TurnEngine) notAccepted() []string {
	var ids []string
	for _, id := range e.participants() {
		if !e.users[id].HasAcceptedScore {
			ids = append(ids, id)
		}
	}
	return ids
}

// allAccepted guards the move from scoring to scores. It runs under the
// engine lock and must not take it.
func (e *TurnEngine) allAccepted() bool {
	return len(e.participants()) > 0 && len(e.notAccepted()) == 0
}
