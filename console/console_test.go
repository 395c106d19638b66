package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/landfluss/engine"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

// loopback is a single-player transport that delivers every message back
// to its own handlers on one goroutine.
type loopback struct {
	mu       sync.Mutex
	name     string
	seq      uint64
	handlers map[protocol.MsgType][]protocol.Handler
	events   map[protocol.Event][]protocol.UserHandler
	queue    chan func()
}

func newLoopback(t *testing.T) *loopback {
	l := &loopback{
		name:     "alice",
		handlers: make(map[protocol.MsgType][]protocol.Handler),
		events:   make(map[protocol.Event][]protocol.UserHandler),
		queue:    make(chan func(), 64),
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case f := <-l.queue:
				f()
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(done) })
	return l
}

func (l *loopback) UserID() string { return "u1" }
func (l *loopback) IsHost() bool   { return true }

func (l *loopback) CurrentUsers() []models.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return []models.User{{ID: "u1", Name: l.name, Connected: true}}
}

func (l *loopback) Send(msgType protocol.MsgType, payload []byte, target string) *protocol.Completion {
	c := protocol.NewCompletion()
	l.queue <- func() {
		l.mu.Lock()
		l.seq++
		meta := protocol.Meta{Sender: "u1", Seq: l.seq}
		handlers := append([]protocol.Handler(nil), l.handlers[msgType]...)
		l.mu.Unlock()
		for _, h := range handlers {
			h(payload, meta)
		}
		c.Resolve(nil)
	}
	return c
}

func (l *loopback) Subscribe(msgType protocol.MsgType, handler protocol.Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[msgType] = append(l.handlers[msgType], handler)
}

func (l *loopback) On(event protocol.Event, handler protocol.UserHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[event] = append(l.events[event], handler)
}

func (l *loopback) rename(name string) error {
	l.mu.Lock()
	l.name = name
	l.mu.Unlock()
	return nil
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newConsole(t *testing.T) (*Console, *engine.TurnEngine, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	c := New(out)
	tr := newLoopback(t)
	config := models.GameConfig{Seed: "console", Categories: []string{"City", "River"}}
	e := engine.NewTurnEngine(tr, engine.Options{Config: &config, Hooks: c.Hooks(), Countdown: time.Millisecond})
	t.Cleanup(e.Close)
	c.Bind(e, tr.rename)
	return c, e, out
}

func run(t *testing.T, c *Console, line string) {
	t.Helper()
	completion, err := c.Execute(line)
	if err != nil {
		t.Fatalf("%q failed: %v", line, err)
	}
	if completion == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := completion.Wait(ctx); err != nil {
		t.Fatalf("%q not delivered: %v", line, err)
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConsole_PlaysARound(t *testing.T) {
	c, e, out := newConsole(t)

	run(t, c, "cat add Animal")
	if got := e.Config().Categories; len(got) != 3 || got[2] != "Animal" {
		t.Fatalf("Expected Animal to be added, got %v", got)
	}
	run(t, c, "start")
	if e.State() != models.StateGuess {
		t.Fatalf("Expected guess, got %s", e.State())
	}

	l := string(e.CurrentLetter())
	run(t, c, "word City "+l+"ollo")
	run(t, c, "word River "+l+"amm")
	run(t, c, "word Animal "+l+"ux")
	run(t, c, "done")
	eventually(t, func() bool { return e.State() == models.StateScoring })

	run(t, c, "score alice City 5")
	if got := e.Score("u1", "City"); got != models.ScoreDuplicate {
		t.Errorf("Expected override to 5, got %d", got)
	}
	run(t, c, "status")
	run(t, c, "accept")
	eventually(t, func() bool { return e.State() == models.StateScores })
	if st, _ := e.UserState("u1"); st.TotalScore != 45 {
		t.Errorf("Expected 5+20+20, got %d", st.TotalScore)
	}
	run(t, c, "next")

	text := out.String()
	for _, want := range []string{"== round 1: letter", "[guess -> scoring]", "alice accepted the scores", "round 1 committed", "== round 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestConsole_Errors(t *testing.T) {
	c, _, _ := newConsole(t)

	tests := []struct {
		line string
		want error
	}{
		{"dance", ErrUnknownCommand},
		{"word City", ErrUsage},
		{"score bob City 5", ErrUnknownUser},
		{"cat del x", ErrUsage},
		{"accept", engine.ErrWrongPhase},
		{"next", engine.ErrWrongPhase},
	}
	for _, tt := range tests {
		if _, err := c.Execute(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.line, tt.want, err)
		}
	}
}

func TestConsole_RenameAndHelp(t *testing.T) {
	c, e, out := newConsole(t)
	run(t, c, "name Alicia")
	run(t, c, "help")
	run(t, c, "")

	if !strings.Contains(out.String(), "commands:") {
		t.Error("Expected help text")
	}
	run(t, c, "start")
	if list := e.ScoreList(); len(list) != 1 || list[0].Name != "Alicia" {
		t.Errorf("Expected renamed player, got %+v", list)
	}
}

func TestConsole_Run(t *testing.T) {
	c, e, out := newConsole(t)
	in := strings.NewReader("cat\nbogus\nstart\n")

	if err := c.Run(context.Background(), in); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	eventually(t, func() bool { return e.State() == models.StateGuess })
	if !strings.Contains(out.String(), "1. City") || !strings.Contains(out.String(), "unknown command") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestConsole_Unbound(t *testing.T) {
	c := New(&bytes.Buffer{})
	if _, err := c.Execute("start"); !errors.Is(err, ErrNotBound) {
		t.Errorf("Expected ErrNotBound, got %v", err)
	}
}
