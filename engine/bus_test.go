package engine

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

type table struct {
	bus     *Bus
	peers   map[string]*BusPeer
	engines map[string]*TurnEngine
	order   []string
}

// newTable connects a host and its guests, in order, through one bus.
func newTable(t *testing.T, host string, guests ...string) *table {
	t.Helper()
	tb := &table{bus: NewBus(), peers: make(map[string]*BusPeer), engines: make(map[string]*TurnEngine)}
	t.Cleanup(tb.bus.Close)

	config := models.GameConfig{Seed: "table-seed", Categories: []string{"City", "River"}}
	for _, id := range append([]string{host}, guests...) {
		peer := tb.bus.Join(id, id == host)
		e := NewTurnEngine(peer, testOptions(config))
		t.Cleanup(e.Close)
		tb.peers[id] = peer
		tb.engines[id] = e
		tb.order = append(tb.order, id)
		tb.bus.Connect(peer, protocol.EventUserConnect)
	}
	tb.bus.Flush(t)
	return tb
}

func (tb *table) wait(t *testing.T, c *protocol.Completion) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Delivery failed: %v", err)
	}
	tb.bus.Flush(t)
}

func (tb *table) assertConverged(t *testing.T) {
	t.Helper()
	ref := tb.engines[tb.order[0]].Snapshot()
	for _, id := range tb.order[1:] {
		got := tb.engines[id].Snapshot()
		if got.State != ref.State || got.Round != ref.Round || got.CurrentLetter != ref.CurrentLetter ||
			!slices.Equal(got.UsedLetters, ref.UsedLetters) || len(got.UserStates) != len(ref.UserStates) {
			t.Fatalf("Peer %s diverged:\n got  %+v\n want %+v", id, got, ref)
		}
		for i := range ref.UserStates {
			if got.UserStates[i].TotalScore != ref.UserStates[i].TotalScore ||
				!slices.Equal(got.UserStates[i].CurrentScores, ref.UserStates[i].CurrentScores) {
				t.Fatalf("Peer %s has different scores for %s", id, ref.UserStates[i].UserID)
			}
		}
	}
}

func TestBus_FullRound(t *testing.T) {
	tb := newTable(t, "h", "a", "b")
	for id, e := range tb.engines {
		if !e.Synced() {
			t.Fatalf("Peer %s not welcomed", id)
		}
	}

	tb.wait(t, tb.engines["h"].StartGame())
	tb.assertConverged(t)
	if state := tb.engines["a"].State(); state != models.StateGuess {
		t.Fatalf("Expected guess, got %s", state)
	}

	letter := tb.engines["h"].CurrentLetter()
	words := map[string][2]string{
		"h": {wordFor(letter) + "h", wordFor(letter)},
		"a": {wordFor(letter) + "h", ""},
		"b": {wordFor(letter) + "b", wordFor(letter)},
	}
	for id, w := range words {
		_ = tb.engines[id].SetWord("City", w[0])
		if w[1] != "" {
			_ = tb.engines[id].SetWord("River", w[1])
		}
	}
	tb.bus.Flush(t)
	if n := tb.engines["a"].Untouched("River"); n != 1 {
		t.Errorf("Expected one untouched River, got %d", n)
	}

	tb.wait(t, tb.engines["b"].EndRound())
	tb.assertConverged(t)

	h := tb.engines["h"]
	if h.State() != models.StateScoring {
		t.Fatalf("Expected scoring, got %s", h.State())
	}
	wantCity := map[string]models.ScoreType{"h": models.ScoreDuplicate, "a": models.ScoreDuplicate, "b": models.ScoreUnique}
	for id, score := range wantCity {
		if got := h.Score(id, "City"); got != score {
			t.Errorf("City score of %s = %s, want %s", id, got, score)
		}
	}
	if got := h.Score("a", "River"); got != models.ScoreNone {
		t.Errorf("Empty word scored %s", got)
	}

	tb.wait(t, tb.engines["a"].ScoreWord("a", "River", models.ScoreUnique))
	for _, id := range tb.order {
		tb.wait(t, tb.engines[id].AcceptScoring())
	}
	tb.assertConverged(t)
	if h.State() != models.StateScores {
		t.Fatalf("Expected scores, got %s", h.State())
	}
	totals := map[string]int{"h": 25, "a": 15, "b": 30}
	for _, r := range h.ScoreList() {
		if r.Score != totals[r.UserID] {
			t.Errorf("Total of %s = %d, want %d", r.UserID, r.Score, totals[r.UserID])
		}
	}
	if got := h.ScoreList()[0]; got.UserID != "b" || got.Rank != 1 {
		t.Errorf("Unexpected leader %+v", got)
	}

	tb.wait(t, h.NextRound())
	tb.assertConverged(t)
	if tb.engines["b"].Round() != 1 || tb.engines["b"].CurrentLetter() == letter {
		t.Errorf("Expected round 1 with a new letter")
	}
}

func TestBus_AllSkipped(t *testing.T) {
	tb := newTable(t, "h", "a")
	tb.wait(t, tb.engines["h"].StartGame())

	tb.wait(t, tb.engines["h"].Skip())
	tb.wait(t, tb.engines["a"].Skip())
	tb.assertConverged(t)
	if state := tb.engines["a"].State(); state != models.StateScoring {
		t.Errorf("Expected scoring after all skipped, got %s", state)
	}
}

func TestBus_LateJoinerWatchesUntilNextRound(t *testing.T) {
	tb := newTable(t, "h", "a")
	tb.wait(t, tb.engines["h"].StartGame())

	peer := tb.bus.Join("late", false)
	late := NewTurnEngine(peer, testOptions(models.NewGameConfig()))
	defer late.Close()
	tb.bus.Connect(peer, protocol.EventUserConnect)
	tb.bus.Flush(t)

	if !late.Synced() || late.State() != models.StateGuess || late.CurrentLetter() != tb.engines["h"].CurrentLetter() {
		t.Fatalf("Late joiner not resynced: %+v", late.Snapshot())
	}
	if _, ok := late.UserState("late"); ok {
		t.Error("Late joiner must not take part in the running round")
	}

	tb.wait(t, tb.engines["h"].Skip())
	tb.wait(t, tb.engines["a"].Skip())
	if late.State() != models.StateScoring {
		t.Fatalf("Spectator must not block the round, got %s", late.State())
	}
	for _, id := range []string{"h", "a"} {
		tb.wait(t, tb.engines[id].AcceptScoring())
	}
	tb.wait(t, tb.engines["h"].NextRound())
	if _, ok := late.UserState("late"); !ok {
		t.Error("Late joiner should play from the next round on")
	}
	if late.Round() != tb.engines["h"].Round() {
		t.Errorf("Round mismatch %d vs %d", late.Round(), tb.engines["h"].Round())
	}
}

func TestBus_ReconnectResync(t *testing.T) {
	tb := newTable(t, "h", "a", "b")
	h := tb.engines["h"]
	tb.wait(t, h.StartGame())

	tb.bus.Disconnect(tb.peers["b"])
	tb.bus.Flush(t)
	if err := h.SetWord("City", "x"); err != nil {
		t.Fatalf("SetWord failed: %v", err)
	}
	tb.bus.Flush(t)
	tb.bus.Connect(tb.peers["b"], protocol.EventUserReconnect)
	tb.bus.Flush(t)

	b := tb.engines["b"]
	if !b.Synced() {
		t.Fatal("Reconnected peer did not resync")
	}
	if hs, _ := b.UserState("h"); !hs.HasTouched("City") {
		t.Error("Reconnected peer missed the touch sent while it was away")
	}
	tb.assertConverged(t)

	for _, id := range tb.order {
		tb.wait(t, tb.engines[id].Skip())
	}
	tb.assertConverged(t)
	if b.State() != models.StateScoring {
		t.Errorf("Expected scoring, got %s", b.State())
	}
}

func TestBus_HostReconnectConverges(t *testing.T) {
	tb := newTable(t, "h", "a", "b")
	h := tb.engines["h"]
	tb.wait(t, h.StartGame())

	tb.bus.Disconnect(tb.peers["h"])
	tb.bus.Flush(t)
	tb.wait(t, tb.engines["a"].Skip())
	tb.wait(t, tb.engines["b"].Skip())
	if state := tb.engines["a"].State(); state != models.StateScoring {
		t.Fatalf("Guests should end the round without the host, got %s", state)
	}

	peer := tb.bus.Join("late", false)
	late := NewTurnEngine(peer, testOptions(models.NewGameConfig()))
	defer late.Close()
	tb.bus.Connect(peer, protocol.EventUserConnect)
	tb.bus.Flush(t)
	if late.Synced() {
		t.Fatal("Nobody can welcome a peer while the host is away")
	}

	tb.bus.Connect(tb.peers["h"], protocol.EventUserReconnect)
	tb.bus.Flush(t)
	if !h.Synced() || h.State() != models.StateScoring {
		t.Fatalf("Host did not catch up: synced=%v state=%s", h.Synced(), h.State())
	}
	if hs, _ := h.UserState("a"); !hs.Skipped {
		t.Error("Host missed the skip sent while it was away")
	}
	if !late.Synced() || late.State() != models.StateScoring {
		t.Errorf("Late joiner not synced by the returning host: %+v", late.Snapshot())
	}
	tb.assertConverged(t)

	for _, id := range tb.order {
		tb.wait(t, tb.engines[id].AcceptScoring())
	}
	tb.assertConverged(t)
	if state := h.State(); state != models.StateScores {
		t.Errorf("Expected scores, got %s", state)
	}
	if late.State() != models.StateScores {
		t.Errorf("Late joiner stuck in %s", late.State())
	}
}
