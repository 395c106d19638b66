// Package console drives a turn engine from line commands and prints what
// happens at the table.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/wfunc/landfluss/engine"
	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
	ErrUnknownUser    = errors.New("unknown user")
	ErrNotBound       = errors.New("console is not bound to an engine")
)

const help = `commands:
  start                      start or restart the game (host)
  cat                        list categories
  cat add <name>             add a category (lobby)
  cat set <n> <name>         rename category n (lobby)
  cat del <n>                delete category n (lobby)
  word <category> <word>     fill in a word
  done                       end the round
  skip                       toggle skipping the round
  score <user> <cat> <pts>   override a score: 0, 5, 10, 20
  accept                     accept the scores
  next                       start the next round (host)
  status                     show the table
  name <name>                change your name
  help                       show this help
`

// Console reads commands for one engine and writes events to out.
type Console struct {
	out    io.Writer
	mu     sync.Mutex
	engine *engine.TurnEngine
	rename func(name string) error
}

func New(out io.Writer) *Console {
	return &Console{out: out}
}

// Bind attaches the engine the commands act on. rename may be nil.
func (c *Console) Bind(e *engine.TurnEngine, rename func(name string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine = e
	c.rename = rename
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) bound() *engine.TurnEngine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Hooks prints engine events.
func (c *Console) Hooks() engine.Hooks {
	return engine.Hooks{
		RoundStarted: func(round int, letter models.Letter) {
			c.printf("== round %d: letter %s ==\n", round+1, letter.Upper())
		},
		CountdownFinished: func(int) {
			c.printf("go!\n")
		},
		RoundEnded: func(endedBy string) {
			if endedBy == "" {
				c.printf("everyone skipped the round\n")
				return
			}
			c.printf("%s ended the round\n", c.name(endedBy))
		},
		ScoreChanged: func(userID, category string, score models.ScoreType) {
			c.printf("%s: %s now scores %d\n", c.name(userID), category, score)
		},
		ScoringAccepted: func(userID string, waitingForSelf bool) {
			c.printf("%s accepted the scores\n", c.name(userID))
			if waitingForSelf {
				c.printf("everyone is waiting for you to accept\n")
			}
		},
		RoundCommitted: func(rec models.RoundRecord) {
			c.printf("round %d committed (game %s)\n", rec.Round+1, rec.GameID)
		},
		StateChanged: func(from, to models.GameState) {
			c.printf("[%s -> %s]\n", from, to)
		},
		ConfigChanged: func(config models.GameConfig) {
			c.printf("categories: %s\n", strings.Join(config.Categories, ", "))
		},
		Resynced: func(snap models.Snapshot) {
			c.printf("synced at %s, round %d\n", snap.State, snap.Round+1)
		},
		UsersChanged: func(event protocol.Event, user models.User) {
			c.printf("%s: %s\n", event, user.Name)
		},
	}
}

func (c *Console) name(userID string) string {
	e := c.bound()
	if e == nil {
		return userID
	}
	for _, r := range e.ScoreList() {
		if r.UserID == userID && r.Name != "" {
			return r.Name
		}
	}
	return userID
}

// Run executes commands from in until it is exhausted or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case line := <-lines:
			completion, err := c.Execute(line)
			if err != nil {
				c.printf("error: %v\n", err)
				continue
			}
			if completion != nil {
				go c.report(completion)
			}
		}
	}
}

func (c *Console) report(completion *protocol.Completion) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := completion.Wait(ctx); err != nil {
		c.printf("error: %v\n", err)
	}
}

// Execute runs one command. Network actions return their completion; an
// action that failed before reaching the network returns its error.
func (c *Console) Execute(line string) (*protocol.Completion, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	if cmd == "help" {
		c.printf("%s", help)
		return nil, nil
	}

	e := c.bound()
	if e == nil {
		return nil, ErrNotBound
	}

	switch cmd {
	case "start":
		return settle(e.StartGame())
	case "cat":
		return c.categories(e, args)
	case "word":
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: word <category> <word>", ErrUsage)
		}
		return nil, e.SetWord(args[0], strings.Join(args[1:], " "))
	case "done":
		return settle(e.EndRound())
	case "skip":
		return settle(e.Skip())
	case "score":
		return c.score(e, args)
	case "accept":
		return settle(e.AcceptScoring())
	case "next":
		return settle(e.NextRound())
	case "status":
		c.status(e)
		return nil, nil
	case "name":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: name <name>", ErrUsage)
		}
		c.mu.Lock()
		rename := c.rename
		c.mu.Unlock()
		if rename == nil {
			return nil, ErrNotBound
		}
		return nil, rename(strings.Join(args, " "))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// settle turns an already failed completion into an error.
func settle(completion *protocol.Completion) (*protocol.Completion, error) {
	if err := completion.Err(); err != nil {
		return nil, err
	}
	return completion, nil
}

func (c *Console) categories(e *engine.TurnEngine, args []string) (*protocol.Completion, error) {
	if len(args) == 0 {
		for i, cat := range e.Config().Categories {
			c.printf("%d. %s\n", i+1, cat)
		}
		return nil, nil
	}
	switch {
	case args[0] == "add" && len(args) >= 2:
		return settle(e.AddCategory(strings.Join(args[1:], " ")))
	case args[0] == "set" && len(args) >= 3:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: cat set <n> <name>", ErrUsage)
		}
		return settle(e.SetCategory(n-1, strings.Join(args[2:], " ")))
	case args[0] == "del" && len(args) == 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: cat del <n>", ErrUsage)
		}
		return settle(e.DeleteCategory(n - 1))
	default:
		return nil, fmt.Errorf("%w: cat [add <name> | set <n> <name> | del <n>]", ErrUsage)
	}
}

func (c *Console) score(e *engine.TurnEngine, args []string) (*protocol.Completion, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%w: score <user> <category> <points>", ErrUsage)
	}
	userID, err := c.lookupUser(e, args[0])
	if err != nil {
		return nil, err
	}
	points, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, fmt.Errorf("%w: points must be 0, 5, 10 or 20", ErrUsage)
	}
	return settle(e.ScoreWord(userID, args[1], models.ScoreType(points)))
}

// lookupUser accepts a user id or a case-insensitive name.
func (c *Console) lookupUser(e *engine.TurnEngine, who string) (string, error) {
	for _, r := range e.ScoreList() {
		if r.UserID == who || strings.EqualFold(r.Name, who) {
			return r.UserID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownUser, who)
}

func (c *Console) status(e *engine.TurnEngine) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := e.State()
	fmt.Fprintf(c.out, "state: %s, round %d", state, e.Round()+1)
	if letter := e.CurrentLetter(); letter != "" {
		fmt.Fprintf(c.out, ", letter %s", letter.Upper())
	}
	fmt.Fprintln(c.out)
	if state == models.StateGuess {
		if left := time.Until(e.Deadline()); left > 0 {
			fmt.Fprintf(c.out, "starting in %s\n", left.Round(time.Second))
		}
	}

	categories := e.Config().Categories
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tplayer\ttotal")
	for _, cat := range categories {
		fmt.Fprintf(tw, "\t%s", cat)
	}
	fmt.Fprintln(tw)
	for _, r := range e.ScoreList() {
		fmt.Fprintf(tw, "%d\t%s\t%d", r.Rank, r.Name, r.Score)
		for _, cat := range categories {
			word := e.Word(r.UserID, cat)
			if state == models.StateScoring || state == models.StateScores {
				fmt.Fprintf(tw, "\t%s (%d)", word, e.Score(r.UserID, cat))
			} else {
				fmt.Fprintf(tw, "\t%s", word)
			}
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()

	if state == models.StateScoring {
		fmt.Fprintf(c.out, "waiting for %d to accept\n", e.NotAcceptedCount())
	}
}
