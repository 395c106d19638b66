package models

import (
	"slices"
	"sort"
)

// SolutionEntry is one (category, word) pair.
type SolutionEntry struct {
	Category string `json:"category"`
	Word     string `json:"word"`
}

// ScoreEntry is one (category, score) pair.
type ScoreEntry struct {
	Category string    `json:"category"`
	Score    ScoreType `json:"score"`
}

// SerializedUserState is the wire form of a UserState. Maps and sets are
// flattened to lists because the wire format has no associative container.
type SerializedUserState struct {
	UserID            string          `json:"userId"`
	Solutions         []SolutionEntry `json:"solutions"`
	CurrentScores     []ScoreEntry    `json:"currentScores"`
	TouchedCategories []string        `json:"touchedCategories"`
	TotalScore        int             `json:"totalScore"`
	Skipped           bool            `json:"skipped"`
	HasAcceptedScore  bool            `json:"hasAcceptedScore"`
}

// Snapshot is the full turn state a host sends to a (re)joining peer.
// Seq is the sequence number of the last message applied before capture.
type Snapshot struct {
	Seq           uint64                `json:"seq"`
	Config        GameConfig            `json:"config"`
	State         GameState             `json:"state"`
	Deadline      int64                 `json:"deadline"`
	Round         int                   `json:"round"`
	UserStates    []SerializedUserState `json:"userStates"`
	CurrentLetter Letter                `json:"currentLetter"`
	UsedLetters   []Letter              `json:"usedLetters"`
}

// SolutionEntries flattens a solution map, ordered by category name.
func SolutionEntries(solutions map[string]string) []SolutionEntry {
	entries := make([]SolutionEntry, 0, len(solutions))
	for _, category := range sortedKeys(solutions) {
		entries = append(entries, SolutionEntry{Category: category, Word: solutions[category]})
	}
	return entries
}

// SolutionMap rebuilds a solution map. Later entries win on duplicate categories.
func SolutionMap(entries []SolutionEntry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Category] = e.Word
	}
	return m
}

// SerializeUserState flattens state for userID.
func SerializeUserState(userID string, state *UserState) SerializedUserState {
	scores := make([]ScoreEntry, 0, len(state.CurrentScores))
	for _, category := range sortedKeys(state.CurrentScores) {
		scores = append(scores, ScoreEntry{Category: category, Score: state.CurrentScores[category]})
	}
	touched := make([]string, 0, len(state.TouchedCategories))
	for category := range state.TouchedCategories {
		touched = append(touched, category)
	}
	sort.Strings(touched)

	return SerializedUserState{
		UserID:            userID,
		Solutions:         SolutionEntries(state.Solutions),
		CurrentScores:     scores,
		TouchedCategories: touched,
		TotalScore:        state.TotalScore,
		Skipped:           state.Skipped,
		HasAcceptedScore:  state.HasAcceptedScore,
	}
}

// DeserializeUserState rebuilds a UserState and returns it with its user id.
func DeserializeUserState(s SerializedUserState) (string, *UserState) {
	state := &UserState{
		Solutions:         SolutionMap(s.Solutions),
		CurrentScores:     make(map[string]ScoreType, len(s.CurrentScores)),
		TouchedCategories: make(map[string]struct{}, len(s.TouchedCategories)),
		TotalScore:        s.TotalScore,
		Skipped:           s.Skipped,
		HasAcceptedScore:  s.HasAcceptedScore,
	}
	for _, e := range s.CurrentScores {
		state.CurrentScores[e.Category] = e.Score
	}
	for _, category := range s.TouchedCategories {
		state.TouchedCategories[category] = struct{}{}
	}
	return s.UserID, state
}

// SerializeUserStates flattens a user store ordered by user id.
func SerializeUserStates(states map[string]*UserState) []SerializedUserState {
	out := make([]SerializedUserState, 0, len(states))
	for _, id := range sortedKeys(states) {
		out = append(out, SerializeUserState(id, states[id]))
	}
	return out
}

// DeserializeUserStates rebuilds a user store.
func DeserializeUserStates(list []SerializedUserState) map[string]*UserState {
	states := make(map[string]*UserState, len(list))
	for _, s := range list {
		id, state := DeserializeUserState(s)
		states[id] = state
	}
	return states
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
