// Package letters draws the non-repeating, seed-derived letter of each round.
//
// # Determinism
//
// A Sequence is a pure function of its seed and the number of draws made.
// Two sequences built from the same seed produce the same letters in the same
// order, which lets a rejoining peer rebuild the host's sequence from the seed
// and the current letter alone (see Replay).
package letters

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/cespare/xxhash/v2"

	"github.com/wfunc/landfluss/models"
)

var (
	// ErrExhausted is returned when every letter of the alphabet has been used.
	ErrExhausted = errors.New("letters: alphabet exhausted")
	// ErrNotSeeded is returned when drawing from a zero Sequence.
	ErrNotSeeded = errors.New("letters: sequence not seeded")
	// ErrInconsistentSequence is returned when a replay does not reproduce the expected letters.
	ErrInconsistentSequence = errors.New("letters: inconsistent random seed, wrong sequence of letters generated")
)

// Alphabet lists the playable letters in draw order. Q, X and Y are too rare to play.
var Alphabet = []models.Letter{
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m",
	"n", "o", "p", "r", "s", "t", "u", "v", "w", "z",
}

// Sequence is a seeded generator of unique letters.
type Sequence struct {
	seed    string
	rng     *rand.Rand
	used    map[models.Letter]struct{}
	current models.Letter
	draws   int
}

// New returns a sequence seeded from seed with no letters used.
func New(seed string) *Sequence {
	return &Sequence{
		seed: seed,
		rng:  rand.New(rand.NewSource(int64(xxhash.Sum64String(seed)))),
		used: make(map[models.Letter]struct{}, len(Alphabet)),
	}
}

// Seed returns the seed the sequence was built from.
func (s *Sequence) Seed() string {
	return s.seed
}

// Draw picks a letter uniformly among the unused ones, marks it used and returns it.
// It consumes exactly one integer draw from the seeded source.
func (s *Sequence) Draw() (models.Letter, error) {
	if s == nil || s.rng == nil {
		return "", ErrNotSeeded
	}
	available := s.Available()
	if len(available) == 0 {
		return "", ErrExhausted
	}
	letter := available[s.rng.Intn(len(available))]
	s.used[letter] = struct{}{}
	s.current = letter
	s.draws++
	return letter, nil
}

// Current returns the letter of the last draw, or "" before the first one.
func (s *Sequence) Current() models.Letter {
	if s == nil {
		return ""
	}
	return s.current
}

// Draws returns the number of letters drawn so far.
func (s *Sequence) Draws() int {
	if s == nil {
		return 0
	}
	return s.draws
}

// IsUsed reports whether letter has been drawn.
func (s *Sequence) IsUsed(letter models.Letter) bool {
	if s == nil {
		return false
	}
	_, ok := s.used[letter]
	return ok
}

// Used returns the drawn letters in alphabet order.
func (s *Sequence) Used() []models.Letter {
	used := make([]models.Letter, 0, s.Draws())
	for _, letter := range Alphabet {
		if s.IsUsed(letter) {
			used = append(used, letter)
		}
	}
	return used
}

// Available returns the letters not drawn yet in alphabet order.
func (s *Sequence) Available() []models.Letter {
	available := make([]models.Letter, 0, len(Alphabet))
	for _, letter := range Alphabet {
		if !s.IsUsed(letter) {
			available = append(available, letter)
		}
	}
	return available
}

// NextLetter is the functional form of a draw: given the seed and the letters
// already drawn (in draw order) it returns the next letter of the sequence.
func NextLetter(seed string, prior []models.Letter) (models.Letter, error) {
	s := New(seed)
	for i, want := range prior {
		got, err := s.Draw()
		if err != nil {
			return "", err
		}
		if got != want {
			return "", fmt.Errorf("%w: draw %d produced %q, expected %q", ErrInconsistentSequence, i+1, got, want)
		}
	}
	return s.Draw()
}

// Replay rebuilds the sequence for seed by drawing until current comes up,
// then checks that the drawn set matches used exactly.
func Replay(seed string, current models.Letter, used []models.Letter) (*Sequence, error) {
	s := New(seed)
	if current == "" {
		if len(used) != 0 {
			return nil, fmt.Errorf("%w: %d used letters without a current letter", ErrInconsistentSequence, len(used))
		}
		return s, nil
	}

	for {
		letter, err := s.Draw()
		if errors.Is(err, ErrExhausted) {
			return nil, fmt.Errorf("%w: letter %q never drawn", ErrInconsistentSequence, current)
		}
		if err != nil {
			return nil, err
		}
		if letter == current {
			break
		}
	}

	if !s.matches(used) {
		return nil, fmt.Errorf("%w: replayed %v, expected %v", ErrInconsistentSequence, s.Used(), used)
	}
	return s, nil
}

func (s *Sequence) matches(used []models.Letter) bool {
	want := make(map[models.Letter]struct{}, len(used))
	for _, letter := range used {
		want[letter] = struct{}{}
	}
	if len(want) != len(used) || len(want) != len(s.used) {
		return false
	}
	for letter := range want {
		if !s.IsUsed(letter) {
			return false
		}
	}
	return true
}
