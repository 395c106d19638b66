package engine

import (
	"slices"
	"sort"
	"time"

	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
	"github.com/wfunc/landfluss/scoring"
)

// Ranking is one line of the scoreboard.
type Ranking struct {
	Rank   int    `json:"rank"`
	Score  int    `json:"score"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

func (e *TurnEngine) State() models.GameState {
	return e.machine.Current()
}

func (e *TurnEngine) Config() models.GameConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config.Clone()
}

func (e *TurnEngine) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

func (e *TurnEngine) Deadline() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deadline
}

// InCountdown reports whether word entry is still blocked by the countdown.
func (e *TurnEngine) InCountdown() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.machine.Current() == models.StateGuess && e.now().Before(e.deadline)
}

// CurrentLetter returns the round's letter, or "" before the first game.
func (e *TurnEngine) CurrentLetter() models.Letter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sequence == nil {
		return ""
	}
	return e.sequence.Current()
}

func (e *TurnEngine) UsedLetters() []models.Letter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sequence == nil {
		return nil
	}
	return e.sequence.Used()
}

func (e *TurnEngine) AvailableLetters() []models.Letter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sequence == nil {
		return nil
	}
	return e.sequence.Available()
}

// UserState returns a copy of a user's state.
func (e *TurnEngine) UserState(userID string) (*models.UserState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	user, ok := e.users[userID]
	if !ok {
		return nil, false
	}
	return user.Clone(), true
}

// UserIDs lists every user with a state, sorted.
func (e *TurnEngine) UserIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedIDs(e.users)
}

// Solution returns the local user's words.
func (e *TurnEngine) Solution() (map[string]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.users[e.userID()]; !ok {
		return nil, ErrGameNotStarted
	}
	return e.solution(), nil
}

// solution is the local user's word per category. While guessing it is the
// draft, afterwards the words the user submitted.
func (e *TurnEngine) solution() map[string]string {
	words := make(map[string]string, len(e.config.Categories))
	for _, category := range e.config.Categories {
		words[category] = e.wordOf(e.userID(), category)
	}
	return words
}

func (e *TurnEngine) wordOf(userID, category string) string {
	if userID == e.userID() && e.machine.Current() == models.StateGuess {
		return e.drafts[category]
	}
	if user, ok := e.users[userID]; ok {
		return user.Solutions[category]
	}
	return ""
}

// Word returns a user's word in lowercase, or "".
func (e *TurnEngine) Word(userID, category string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return scoring.Normalize(e.wordOf(userID, category))
}

// AllWords counts the normalized non-empty words submitted for category.
func (e *TurnEngine) AllWords(category string) map[string]int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	words := make(map[string]string, len(e.users))
	for id, user := range e.users {
		words[id] = user.Solutions[category]
	}
	return scoring.Frequencies(words)
}

func (e *TurnEngine) Score(userID, category string) models.ScoreType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	user, ok := e.users[userID]
	if !ok {
		return models.ScoreNone
	}
	return user.CurrentScores[category]
}

// ScoreList ranks every user with a state by total score. Ties keep user id order.
func (e *TurnEngine) ScoreList() []Ranking {
	e.mu.RLock()
	defer e.mu.RUnlock()

	list := make([]Ranking, 0, len(e.users))
	for _, id := range sortedIDs(e.users) {
		list = append(list, Ranking{Score: e.users[id].TotalScore, UserID: id, Name: e.userName(id)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
	for i := range list {
		list[i].Rank = i + 1
	}
	return list
}

// Rank returns a user's position on the scoreboard, 0 if unranked.
func (e *TurnEngine) Rank(userID string) int {
	for _, r := range e.ScoreList() {
		if r.UserID == userID {
			return r.Rank
		}
	}
	return 0
}

func (e *TurnEngine) AllSkipped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.allSkipped()
}

// NotAcceptedCount is the number of participants that did not accept the scores yet.
func (e *TurnEngine) NotAcceptedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.notAccepted())
}

// Untouched counts the connected users that did not start on category.
func (e *TurnEngine) Untouched(category string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	count := 0
	for _, id := range e.connectedIDs() {
		if user, ok := e.users[id]; !ok || !user.HasTouched(category) {
			count++
		}
	}
	return count
}

// IsUserDone reports whether a user skipped or has a word in every category.
func (e *TurnEngine) IsUserDone(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	user, ok := e.users[userID]
	if !ok {
		return false
	}
	if user.Skipped {
		return true
	}
	for _, category := range e.config.Categories {
		if e.wordOf(userID, category) == "" {
			return false
		}
	}
	return true
}

// Validation checks the local user's words against the round's letter.
func (e *TurnEngine) Validation() (Validation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.validation()
}

func (e *TurnEngine) validation() (Validation, error) {
	if _, ok := e.users[e.userID()]; !ok || e.sequence == nil {
		return Validation{}, ErrGameNotStarted
	}
	return Validate(e.config.Categories, e.solution(), e.sequence.Current()), nil
}

// CanEndTurn reports whether the local user may end the round.
func (e *TurnEngine) CanEndTurn() bool {
	v, err := e.Validation()
	return err == nil && v.Valid()
}

// Loading lists the message types whose delivery is still pending.
func (e *TurnEngine) Loading() []protocol.MsgType {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadingList()
}

func (e *TurnEngine) loadingList() []protocol.MsgType {
	list := make([]protocol.MsgType, 0, len(e.loading))
	for msgType := range e.loading {
		list = append(list, msgType)
	}
	slices.Sort(list)
	return list
}

// IsLoading reports whether a message of msgType is still being delivered.
func (e *TurnEngine) IsLoading(msgType protocol.MsgType) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading[msgType] > 0
}

func sortedIDs(users map[string]*models.UserState) []string {
	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
