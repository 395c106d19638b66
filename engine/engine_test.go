package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/wfunc/landfluss/letters"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

func firstLetter(t *testing.T, seed string) models.Letter {
	t.Helper()
	letter, err := letters.New(seed).Draw()
	if err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
	return letter
}

func startedEngine(t *testing.T, self string, categories []string, users ...string) (*TurnEngine, *MockTransport, models.GameConfig) {
	t.Helper()
	config := models.GameConfig{Seed: "seed-" + t.Name(), Categories: categories}
	tr := NewMockTransport(self, true, users...)
	e := NewTurnEngine(tr, testOptions(config))
	t.Cleanup(e.Close)
	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: config}, self)
	return e, tr, config
}

func TestApplyMessage_StartGame(t *testing.T) {
	e, _, config := startedEngine(t, "u1", []string{"City", "River"}, "u1", "u2", "u3")

	if e.State() != models.StateGuess {
		t.Fatalf("Expected state %s, got %s", models.StateGuess, e.State())
	}
	if e.Round() != 0 {
		t.Errorf("Expected round 0, got %d", e.Round())
	}
	if got, want := e.CurrentLetter(), firstLetter(t, config.Seed); got != want {
		t.Errorf("Expected letter %q, got %q", want, got)
	}
	if len(e.UsedLetters()) != 1 || len(e.AvailableLetters()) != len(letters.Alphabet)-1 {
		t.Errorf("Unexpected letter sets: used %v, available %v", e.UsedLetters(), e.AvailableLetters())
	}
	if !e.Deadline().Equal(testNow.Add(DefaultCountdown)) {
		t.Errorf("Expected deadline %v, got %v", testNow.Add(DefaultCountdown), e.Deadline())
	}
	if !e.InCountdown() {
		t.Error("Expected round to start with a countdown")
	}

	ids := e.UserIDs()
	if len(ids) != 3 {
		t.Fatalf("Expected 3 user states, got %v", ids)
	}
	for _, id := range ids {
		user, _ := e.UserState(id)
		if len(user.Solutions) != 2 || user.Solutions["City"] != "" || user.TotalScore != 0 {
			t.Errorf("User %s not reset: %+v", id, user)
		}
	}
}

func TestApplyMessage_StartGameResetsTotals(t *testing.T) {
	seed := "seed-restart"
	letter := firstLetter(t, seed)
	tr := NewMockTransport("v", false, "u", "v")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()

	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: models.Snapshot{
		Config:        models.GameConfig{Seed: seed, Categories: []string{"A"}},
		State:         models.StateScores,
		Round:         4,
		CurrentLetter: letter,
		UsedLetters:   []models.Letter{letter},
		UserStates: []models.SerializedUserState{
			{UserID: "u", TotalScore: 40},
			{UserID: "gone", TotalScore: 15},
		},
	}}, "u")

	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: models.GameConfig{Seed: "other", Categories: []string{"B"}}}, "u")

	if e.State() != models.StateGuess {
		t.Fatalf("Expected state %s, got %s", models.StateGuess, e.State())
	}
	if ids := e.UserIDs(); len(ids) != 2 || ids[0] != "u" || ids[1] != "v" {
		t.Errorf("Expected fresh states for connected users only, got %v", ids)
	}
	if user, _ := e.UserState("u"); user.TotalScore != 0 {
		t.Errorf("Expected total reset to 0, got %d", user.TotalScore)
	}
	if len(e.UsedLetters()) != 1 || e.CurrentLetter() != firstLetter(t, "other") {
		t.Errorf("Expected a reseeded sequence, got %v", e.UsedLetters())
	}
	if e.Round() != 4 {
		t.Errorf("Round counter must not reset, got %d", e.Round())
	}
}

func TestApplyMessage_RejectedInWrongPhase(t *testing.T) {
	tr := NewMockTransport("u1", true, "u1", "u2")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()

	tests := []struct {
		msgType protocol.MsgType
		payload any
	}{
		{protocol.MsgTypeNextRound, protocol.NextRound{}},
		{protocol.MsgTypeEndRound, protocol.EndRound{}},
		{protocol.MsgTypeSkip, protocol.Skip{Skipped: true}},
		{protocol.MsgTypeTouchCategory, protocol.TouchCategory{Category: "Stadt"}},
		{protocol.MsgTypeScoreWord, protocol.ScoreWord{UserID: "u2", Category: "Stadt", ScoreType: models.ScoreOnly}},
		{protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}},
		{protocol.MsgType(999), struct{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.msgType.String(), func(t *testing.T) {
			err := e.ApplyMessage(tt.msgType, encode(t, tt.payload), protocol.Meta{Sender: "u2"})
			if !errors.Is(err, ErrMessageRejected) {
				t.Errorf("Expected ErrMessageRejected, got %v", err)
			}
			if e.State() != models.StateLobby {
				t.Errorf("State changed to %s", e.State())
			}
		})
	}
}

func TestApplyMessage_ChangeConfigOnlyInLobby(t *testing.T) {
	tr := NewMockTransport("u1", false, "u1")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeWelcome, protocol.Welcome{}, "h")

	config := models.GameConfig{Seed: "s", Categories: []string{"Tier", "Beruf"}}
	mustApply(t, e, protocol.MsgTypeChangeConfig, protocol.ChangeConfig{Config: config}, "u1")
	if got := e.Config(); got.Seed != "s" || len(got.Categories) != 2 {
		t.Fatalf("Config not adopted: %+v", got)
	}

	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: config}, "h")
	err := e.ApplyMessage(protocol.MsgTypeChangeConfig, encode(t, protocol.ChangeConfig{Config: models.NewGameConfig()}), protocol.Meta{Sender: "u1"})
	if !errors.Is(err, ErrMessageRejected) {
		t.Errorf("Expected ErrMessageRejected during a round, got %v", err)
	}
}

func TestApplyMessage_StartGameRejectsInvalidConfig(t *testing.T) {
	tr := NewMockTransport("u1", true, "u1")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()

	err := e.ApplyMessage(protocol.MsgTypeStartGame, encode(t, protocol.StartGame{Config: models.GameConfig{Seed: "s"}}), protocol.Meta{Sender: "u1"})
	if !errors.Is(err, ErrMessageRejected) {
		t.Errorf("Expected ErrMessageRejected, got %v", err)
	}
	if e.State() != models.StateLobby {
		t.Errorf("Expected lobby, got %s", e.State())
	}
}

func TestScoring_DuplicateAndUnique(t *testing.T) {
	e, tr, _ := startedEngine(t, "u1", []string{"City"}, "u1", "u2", "u3")

	mustApply(t, e, protocol.MsgTypeEndRound, protocol.EndRound{}, "u2")
	if e.State() != models.StateScoring {
		t.Fatalf("Expected state %s, got %s", models.StateScoring, e.State())
	}
	if sent := tr.Sent(protocol.MsgTypeSolution); len(sent) != 1 {
		t.Fatalf("Expected own solution to be sent once, got %d", len(sent))
	}

	for user, word := range map[string]string{"u1": "berlin", "u2": "Berlin ", "u3": "bonn"} {
		mustApply(t, e, protocol.MsgTypeSolution, protocol.Solution{Solution: []models.SolutionEntry{{Category: "City", Word: word}}}, user)
	}

	want := map[string]models.ScoreType{"u1": models.ScoreDuplicate, "u2": models.ScoreDuplicate, "u3": models.ScoreUnique}
	for user, score := range want {
		if got := e.Score(user, "City"); got != score {
			t.Errorf("Score(%s) = %s, want %s", user, got, score)
		}
	}
	if words := e.AllWords("City"); words["berlin"] != 2 || words["bonn"] != 1 {
		t.Errorf("Unexpected word counts %v", words)
	}
}

func TestScoring_OnlyPrecedence(t *testing.T) {
	e, _, _ := startedEngine(t, "u1", []string{"City"}, "u1", "u2")

	mustApply(t, e, protocol.MsgTypeEndRound, protocol.EndRound{}, "u1")
	mustApply(t, e, protocol.MsgTypeSolution, protocol.Solution{Solution: []models.SolutionEntry{{Category: "City", Word: "berlin"}}}, "u1")
	mustApply(t, e, protocol.MsgTypeSolution, protocol.Solution{Solution: []models.SolutionEntry{{Category: "City", Word: "berlin"}}}, "u2")

	for _, user := range []string{"u1", "u2"} {
		if got := e.Score(user, "City"); got != models.ScoreOnly {
			t.Errorf("Score(%s) = %s, want %s", user, got, models.ScoreOnly)
		}
	}
}

func TestApplyMessage_AllSkippedEndsRound(t *testing.T) {
	var endedBy []string
	config := models.GameConfig{Seed: "seed", Categories: []string{"City"}}
	tr := NewMockTransport("u1", true, "u1", "u2", "u3")
	opts := testOptions(config)
	opts.Hooks.RoundEnded = func(by string) { endedBy = append(endedBy, by) }
	e := NewTurnEngine(tr, opts)
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: config}, "u1")

	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u1")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: false}, "u1")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u2")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u3")
	if e.State() != models.StateGuess {
		t.Fatalf("Round ended before everyone skipped: %s", e.State())
	}
	if !e.IsUserDone("u2") || e.IsUserDone("u1") {
		t.Error("IsUserDone should follow the skip flag")
	}

	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u1")
	if e.State() != models.StateScoring {
		t.Fatalf("Expected state %s after all skipped, got %s", models.StateScoring, e.State())
	}
	if len(endedBy) != 1 || endedBy[0] != "" {
		t.Errorf("Expected one automatic round end, got %v", endedBy)
	}
	if len(tr.Sent(protocol.MsgTypeSolution)) != 1 {
		t.Error("Expected own solution to be sent on entering scoring")
	}
}

func TestApplyMessage_AllSkippedIgnoresDisconnected(t *testing.T) {
	e, tr, _ := startedEngine(t, "u1", []string{"City"}, "u1", "u2", "u3")

	tr.SetUsers("u1", "u2")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u1")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u2")
	if e.State() != models.StateScoring {
		t.Errorf("Expected disconnected users to be ignored, got %s", e.State())
	}
}

func TestUserEvent_DisconnectOfLastActivePlayerEndsRound(t *testing.T) {
	var endedBy []string
	e, tr, _ := startedEngine(t, "u1", []string{"City"}, "u1", "u2", "u3")
	e.hooks.RoundEnded = func(by string) { endedBy = append(endedBy, by) }

	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u1")
	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u2")
	if e.State() != models.StateGuess {
		t.Fatalf("Round ended while u3 still plays: %s", e.State())
	}

	tr.SetUsers("u1", "u2")
	tr.Fire(protocol.EventUserDisconnect, models.User{ID: "u3"})
	if e.State() != models.StateScoring {
		t.Fatalf("Expected scoring once only skipped players are left, got %s", e.State())
	}
	if len(endedBy) != 1 || endedBy[0] != "" {
		t.Errorf("Expected one automatic round end, got %v", endedBy)
	}
	if len(tr.Sent(protocol.MsgTypeSolution)) != 1 {
		t.Error("Expected own solution on entering scoring")
	}
}

func TestUserEvent_DisconnectKeepsRoundWithActivePlayers(t *testing.T) {
	e, tr, _ := startedEngine(t, "u1", []string{"City"}, "u1", "u2", "u3")

	mustApply(t, e, protocol.MsgTypeSkip, protocol.Skip{Skipped: true}, "u1")
	tr.SetUsers("u1", "u2")
	tr.Fire(protocol.EventUserDisconnect, models.User{ID: "u3"})
	if e.State() != models.StateGuess {
		t.Errorf("Expected to keep guessing while u2 plays, got %s", e.State())
	}
}

func TestUserEvent_DisconnectCompletesAcceptance(t *testing.T) {
	tr := NewMockTransport("u", true, "u", "v", "w")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: scoringSnapshot(t, "seed",
		models.SerializedUserState{UserID: "u", CurrentScores: []models.ScoreEntry{{Category: "A", Score: models.ScoreUnique}}},
		models.SerializedUserState{UserID: "v"},
		models.SerializedUserState{UserID: "w"},
	)}, "u")

	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "u")
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "v")
	tr.SetUsers("u", "v")
	tr.Fire(protocol.EventUserDisconnect, models.User{ID: "w"})

	if e.State() != models.StateScores {
		t.Fatalf("Expected scores once the last pending player left, got %s", e.State())
	}
	if u, _ := e.UserState("u"); u.TotalScore != 10 {
		t.Errorf("Expected the round to be committed, total %d", u.TotalScore)
	}
}

func TestApplyMessage_ScoreWordResetsAcceptance(t *testing.T) {
	var changes int
	config := models.GameConfig{Seed: "seed", Categories: []string{"City"}}
	tr := NewMockTransport("u1", true, "u1", "u2", "u3")
	opts := testOptions(config)
	opts.Hooks.ScoreChanged = func(string, string, models.ScoreType) { changes++ }
	e := NewTurnEngine(tr, opts)
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: config}, "u1")
	mustApply(t, e, protocol.MsgTypeEndRound, protocol.EndRound{}, "u1")

	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "u1")
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "u2")
	if e.NotAcceptedCount() != 1 {
		t.Fatalf("Expected 1 pending acceptance, got %d", e.NotAcceptedCount())
	}

	mustApply(t, e, protocol.MsgTypeScoreWord, protocol.ScoreWord{UserID: "u3", Category: "City", ScoreType: models.ScoreOnly}, "u2")
	for _, id := range e.UserIDs() {
		if user, _ := e.UserState(id); user.HasAcceptedScore {
			t.Errorf("User %s still accepted after a score change", id)
		}
	}
	if e.NotAcceptedCount() != 3 || changes != 1 {
		t.Errorf("Expected 3 pending acceptances and 1 change, got %d and %d", e.NotAcceptedCount(), changes)
	}
	if e.Score("u3", "City") != models.ScoreOnly {
		t.Errorf("Score override not applied")
	}
	if e.State() != models.StateScoring {
		t.Errorf("Expected to stay in scoring, got %s", e.State())
	}

	err := e.ApplyMessage(protocol.MsgTypeScoreWord, encode(t, protocol.ScoreWord{UserID: "u3", Category: "City", ScoreType: 7}), protocol.Meta{Sender: "u2"})
	if !errors.Is(err, ErrMessageRejected) {
		t.Errorf("Expected invalid score to be rejected, got %v", err)
	}
}

func scoringSnapshot(t *testing.T, seed string, users ...models.SerializedUserState) models.Snapshot {
	t.Helper()
	letter := firstLetter(t, seed)
	return models.Snapshot{
		Config:        models.GameConfig{Seed: seed, Categories: []string{"A", "B"}},
		State:         models.StateScoring,
		Deadline:      testNow.UnixMilli(),
		Round:         2,
		UserStates:    users,
		CurrentLetter: letter,
		UsedLetters:   []models.Letter{letter},
	}
}

func TestApplyMessage_RoundCommit(t *testing.T) {
	var committed []models.RoundRecord
	tr := NewMockTransport("v", false, "u", "v")
	opts := testOptions(models.NewGameConfig())
	opts.Hooks.RoundCommitted = func(r models.RoundRecord) { committed = append(committed, r) }
	e := NewTurnEngine(tr, opts)
	defer e.Close()

	snap := scoringSnapshot(t, "seed-commit",
		models.SerializedUserState{
			UserID:        "u",
			CurrentScores: []models.ScoreEntry{{Category: "A", Score: models.ScoreUnique}, {Category: "B", Score: models.ScoreOnly}},
			TotalScore:    5,
		},
		models.SerializedUserState{UserID: "v"},
	)
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: snap}, "u")

	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "u")
	if e.State() != models.StateScoring {
		t.Fatalf("Committed before everyone accepted")
	}
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "v")

	if e.State() != models.StateScores {
		t.Fatalf("Expected state %s, got %s", models.StateScores, e.State())
	}
	if user, _ := e.UserState("u"); user.TotalScore != 35 {
		t.Errorf("Expected total 35, got %d", user.TotalScore)
	}
	if len(committed) != 1 || committed[0].Round != 2 || len(committed[0].Players) != 2 {
		t.Fatalf("Unexpected commit records %+v", committed)
	}
	if p := committed[0].Players[0]; p.UserID != "u" || p.RoundScore != 30 || p.Name != "name-u" {
		t.Errorf("Unexpected player result %+v", p)
	}
}

func TestApplyMessage_AcceptAfterDisconnect(t *testing.T) {
	tr := NewMockTransport("u", true, "u", "v", "w")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: scoringSnapshot(t, "seed",
		models.SerializedUserState{UserID: "u"},
		models.SerializedUserState{UserID: "v"},
		models.SerializedUserState{UserID: "w"},
	)}, "u")

	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "u")
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "v")
	tr.SetUsers("u", "v")
	if e.State() != models.StateScoring {
		t.Fatal("A directory change without an event must not change the phase")
	}
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "v")
	if e.State() != models.StateScores {
		t.Errorf("Expected a repeated accept to commit, got %s", e.State())
	}
}

func TestApplyMessage_NextRound(t *testing.T) {
	var started []int
	tr := NewMockTransport("u", true, "u", "v")
	opts := testOptions(models.NewGameConfig())
	opts.Hooks.RoundStarted = func(round int, _ models.Letter) { started = append(started, round) }
	e := NewTurnEngine(tr, opts)
	defer e.Close()

	snap := scoringSnapshot(t, "seed-next",
		models.SerializedUserState{
			UserID:            "u",
			Solutions:         []models.SolutionEntry{{Category: "A", Word: "x"}},
			TouchedCategories: []string{"A"},
			TotalScore:        12,
			Skipped:           true,
			HasAcceptedScore:  true,
		},
	)
	snap.State = models.StateScores
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: snap}, "u")
	previous := e.CurrentLetter()

	mustApply(t, e, protocol.MsgTypeNextRound, protocol.NextRound{}, "u")

	if e.State() != models.StateGuess || e.Round() != 3 {
		t.Fatalf("Expected guess in round 3, got %s in %d", e.State(), e.Round())
	}
	if e.CurrentLetter() == previous || len(e.UsedLetters()) != 2 {
		t.Errorf("Expected a fresh letter, got %q with used %v", e.CurrentLetter(), e.UsedLetters())
	}
	u, _ := e.UserState("u")
	if u.TotalScore != 12 || u.Skipped || u.HasAcceptedScore || u.HasTouched("A") || u.Solutions["A"] != "" {
		t.Errorf("Per-round fields not reset: %+v", u)
	}
	if _, ok := e.UserState("v"); !ok {
		t.Error("Expected a state for the connected user without one")
	}
	if len(started) != 1 || started[0] != 3 {
		t.Errorf("Expected RoundStarted(3), got %v", started)
	}
}

func TestApplyMessage_ScoringAcceptedWaitingForSelf(t *testing.T) {
	type accepted struct {
		user    string
		waiting bool
	}
	var got []accepted
	tr := NewMockTransport("u", false, "u", "v", "w")
	opts := testOptions(models.NewGameConfig())
	opts.Hooks.ScoringAccepted = func(user string, waiting bool) { got = append(got, accepted{user, waiting}) }
	e := NewTurnEngine(tr, opts)
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: scoringSnapshot(t, "seed",
		models.SerializedUserState{UserID: "u"},
		models.SerializedUserState{UserID: "v"},
		models.SerializedUserState{UserID: "w"},
	)}, "v")

	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "v")
	mustApply(t, e, protocol.MsgTypeAcceptScoring, protocol.AcceptScoring{}, "w")

	want := []accepted{{"v", false}, {"w", true}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestScoreList(t *testing.T) {
	tr := NewMockTransport("u", false, "u", "v", "w")
	e := NewTurnEngine(tr, testOptions(models.NewGameConfig()))
	defer e.Close()
	mustApply(t, e, protocol.MsgTypeGameState, protocol.GameState{Snapshot: scoringSnapshot(t, "seed",
		models.SerializedUserState{UserID: "w", TotalScore: 30},
		models.SerializedUserState{UserID: "u", TotalScore: 30},
		models.SerializedUserState{UserID: "v", TotalScore: 50},
	)}, "v")

	list := e.ScoreList()
	order := []string{"v", "u", "w"}
	for i, id := range order {
		if list[i].UserID != id || list[i].Rank != i+1 {
			t.Errorf("Rank %d: expected %s, got %+v", i+1, id, list[i])
		}
	}
	if e.Rank("w") != 3 || e.Rank("nobody") != 0 {
		t.Errorf("Unexpected ranks: w=%d nobody=%d", e.Rank("w"), e.Rank("nobody"))
	}
}

func TestHost_WelcomesAndResyncsUsers(t *testing.T) {
	config := models.GameConfig{Seed: "seed", Categories: []string{"City"}}
	tr := NewMockTransport("h", true, "h", "v")
	e := NewTurnEngine(tr, testOptions(config))
	defer e.Close()

	tr.Fire(protocol.EventUserConnect, models.User{ID: "v"})
	welcome := tr.Sent(protocol.MsgTypeWelcome)
	if len(welcome) != 1 || welcome[0].target != "v" {
		t.Fatalf("Expected one welcome for v, got %+v", welcome)
	}

	mustApply(t, e, protocol.MsgTypeStartGame, protocol.StartGame{Config: config}, "h")
	tr.Fire(protocol.EventUserConnect, models.User{ID: "w"})
	tr.Fire(protocol.EventUserReconnect, models.User{ID: "v"})
	tr.Fire(protocol.EventUserReconnect, models.User{ID: "h"})

	states := tr.Sent(protocol.MsgTypeGameState)
	if len(states) != 2 || states[0].target != "w" || states[1].target != "v" {
		t.Fatalf("Expected game states for w and v, got %+v", states)
	}
	var msg protocol.GameState
	if err := json.Unmarshal(states[1].payload, &msg); err != nil {
		t.Fatalf("Failed to decode game state: %v", err)
	}
	if msg.State != models.StateGuess || msg.CurrentLetter != e.CurrentLetter() || len(msg.UserStates) != 2 {
		t.Errorf("Unexpected snapshot %+v", msg.Snapshot)
	}
	if len(tr.Sent(protocol.MsgTypeWelcome)) != 1 {
		t.Error("Expected no further welcome once the game started")
	}
	if len(tr.Sent(protocol.MsgTypeRequestState)) != 1 || e.Synced() {
		t.Error("Expected the reconnected host to ask v for the game state")
	}
}
