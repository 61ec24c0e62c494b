// Package moderation masks banned words in chat messages.
package moderation

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Filter matches banned words case-insensitively, seeing through common
// character substitutions and separators ("b.a.d", "B4D").
type Filter struct {
	machine *goahocorasick.Machine
	mask    rune
}

// NewFilter builds the automaton. It returns nil when words holds no
// usable pattern, so callers can skip filtering entirely.
func NewFilter(words []string, mask rune) (*Filter, error) {
	patterns := make([][]rune, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		folded := fold([]rune(strings.TrimSpace(w)))
		if len(folded) == 0 || seen[string(folded)] {
			continue
		}
		seen[string(folded)] = true
		patterns = append(patterns, folded)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	machine := new(goahocorasick.Machine)
	if err := machine.Build(patterns); err != nil {
		return nil, err
	}
	return &Filter{machine: machine, mask: mask}, nil
}

// Censor replaces every matched word with the mask rune. Separators inside
// a match are masked too; everything else is left untouched.
func (f *Filter) Censor(content string) string {
	if f == nil || content == "" {
		return content
	}

	original := []rune(content)
	folded := make([]rune, 0, len(original))
	positions := make([]int, 0, len(original))
	for i, r := range original {
		c := foldRune(r)
		if c == 0 {
			continue
		}
		folded = append(folded, c)
		positions = append(positions, i)
	}
	if len(folded) == 0 {
		return content
	}

	terms := f.machine.MultiPatternSearch(folded, false)
	if len(terms) == 0 {
		return content
	}

	for _, term := range terms {
		end := term.Pos + len(term.Word) - 1
		if term.Pos < 0 || end >= len(positions) {
			continue
		}
		for i := positions[term.Pos]; i <= positions[end]; i++ {
			original[i] = f.mask
		}
	}
	return string(original)
}

func fold(runes []rune) []rune {
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		if c := foldRune(r); c != 0 {
			out = append(out, c)
		}
	}
	return out
}

// foldRune lower-cases r and undoes look-alike digits and symbols. It
// returns 0 for separators.
func foldRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	case '7':
		return 't'
	}
	if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return 0
	}
	return unicode.ToLower(r)
}
