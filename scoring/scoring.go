// Package scoring classifies the words of a round.
//
// Every peer runs the same pure functions over the same submitted solutions,
// so all peers arrive at the same score table without an arbiter.
package scoring

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/wfunc/landfluss/models"
)

// Normalize trims, composes and lowercases a word. An empty result means "no submission".
func Normalize(word string) string {
	word = strings.TrimSpace(word)
	if word == "" {
		return ""
	}
	return cases.Lower(language.Und).String(norm.NFC.String(word))
}

// FirstLetter returns the first rune of the normalized word, or "" for an empty word.
func FirstLetter(word string) models.Letter {
	normalized := Normalize(word)
	for _, r := range normalized {
		return models.Letter(string(r))
	}
	return ""
}

// Frequencies counts the normalized non-empty words of one category.
func Frequencies(words map[string]string) map[string]int {
	counts := make(map[string]int, len(words))
	for _, word := range words {
		if normalized := Normalize(word); normalized != "" {
			counts[normalized]++
		}
	}
	return counts
}

// ScoreCategory scores one category given every user's word, keyed by user id.
//
// A word is ONLY when it is the single distinct word of the category, even if
// several users typed it. Otherwise it is UNIQUE when nobody else typed it and
// DUPLICATE when someone did. Empty words score NONE.
func ScoreCategory(words map[string]string) map[string]models.ScoreType {
	counts := Frequencies(words)
	scores := make(map[string]models.ScoreType, len(words))
	for userID, word := range words {
		normalized := Normalize(word)
		switch {
		case normalized == "":
			scores[userID] = models.ScoreNone
		case len(counts) == 1:
			scores[userID] = models.ScoreOnly
		case counts[normalized] == 1:
			scores[userID] = models.ScoreUnique
		default:
			scores[userID] = models.ScoreDuplicate
		}
	}
	return scores
}

// ScoreRound scores every category. solutions maps user id to that user's
// category→word map; the result maps user id to category→score.
func ScoreRound(categories []string, solutions map[string]map[string]string) map[string]map[string]models.ScoreType {
	result := make(map[string]map[string]models.ScoreType, len(solutions))
	for userID := range solutions {
		result[userID] = make(map[string]models.ScoreType, len(categories))
	}
	for _, category := range categories {
		words := make(map[string]string, len(solutions))
		for userID, solution := range solutions {
			words[userID] = solution[category]
		}
		for userID, score := range ScoreCategory(words) {
			result[userID][category] = score
		}
	}
	return result
}

// Sum adds up the points of one user's score map.
func Sum(scores map[string]models.ScoreType) int {
	total := 0
	for _, score := range scores {
		total += int(score)
	}
	return total
}
