package engine

import (
	"fmt"
	"strings"

	"github.com/wfunc/landfluss/models"
	"github.com/wfunc/landfluss/scoring"
)

// ValidationError describes why one category's word cannot be submitted.
type ValidationError string

const (
	EmptyWord   ValidationError = "word cannot be empty"
	WrongLetter ValidationError = "wrong first letter"
)

// Validation is the result of checking the local user's solution.
type Validation struct {
	CategoryErrors map[string]ValidationError
}

// Valid reports whether every category has an acceptable word.
func (v Validation) Valid() bool {
	return len(v.CategoryErrors) == 0
}

// Validate checks that every category has a word starting with letter.
func Validate(categories []string, solution map[string]string, letter models.Letter) Validation {
	v := Validation{CategoryErrors: make(map[string]ValidationError)}
	for _, category := range categories {
		word := solution[category]
		if strings.TrimSpace(word) == "" {
			v.CategoryErrors[category] = EmptyWord
			continue
		}
		if scoring.FirstLetter(word) != letter {
			v.CategoryErrors[category] = WrongLetter
		}
	}
	return v
}

// ValidateConfig checks that a config can start a game.
func ValidateConfig(config models.GameConfig) error {
	if config.Seed == "" {
		return fmt.Errorf("%w: empty seed", ErrInvalidConfig)
	}
	if len(config.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(config.Categories))
	for i, category := range config.Categories {
		if strings.TrimSpace(category) == "" {
			return fmt.Errorf("%w: category %d is empty", ErrInvalidConfig, i+1)
		}
		if _, ok := seen[category]; ok {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidConfig, category)
		}
		seen[category] = struct{}{}
	}
	return nil
}
