package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wfunc/landfluss/models"
)

// StateMachine drives the phases of a game.
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// State is one phase of the game.
type State interface {
	// OnEnter runs the phase's entry effects. A failed entry leaves the
	// machine in its previous state.
	OnEnter() error
	OnExit()
	GetID() models.GameState
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only moves along registered transitions.
type BaseStateMachine struct {
	currentState State
	transitions  map[models.GameState]map[models.GameState]func() bool // from -> to -> condition
	mutex        sync.RWMutex
}

// NewBaseStateMachine starts in initialState without running its entry effects.
func NewBaseStateMachine(initialState State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.GameState]map[models.GameState]func() bool),
	}
}

// CanChangeState reports whether a transition to id is registered and its condition holds.
func (sm *BaseStateMachine) CanChangeState(id models.GameState) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.allowed(id)
}

func (sm *BaseStateMachine) allowed(id models.GameState) bool {
	conditions, exists := sm.transitions[sm.currentState.GetID()]
	if !exists {
		return false
	}
	condition, exists := conditions[id]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if !sm.allowed(newState.GetID()) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, sm.currentState.GetID(), newState.GetID())
	}

	if err := newState.OnEnter(); err != nil {
		return err
	}
	sm.currentState.OnExit()
	sm.currentState = newState

	return nil
}

// Restore jumps to state without checking transitions or running any effects.
// It is used when adopting a snapshot.
func (sm *BaseStateMachine) Restore(state State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.currentState = state
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Current returns the id of the current state.
func (sm *BaseStateMachine) Current() models.GameState {
	return sm.GetCurrentState().GetID()
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[models.GameState]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}
