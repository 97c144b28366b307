package assessment

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinAnswerLength is the number of characters a trimmed answer has to
// exceed to count as an answer.
const DefaultMinAnswerLength = 5

// Predicate decides whether a patient answer lets the interview move on.
type Predicate interface {
	ShouldAdvance(answer string) bool
}

type PredicateFunc func(answer string) bool

func (f PredicateFunc) ShouldAdvance(answer string) bool {
	return f(answer)
}

// MinLengthPredicate accepts any answer longer than MinLength once
// surrounding whitespace is removed. It says nothing about whether the
// answer is correct or even on topic.
type MinLengthPredicate struct {
	MinLength int
}

func (p MinLengthPredicate) ShouldAdvance(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	return trimmed != "" && utf8.RuneCountInString(trimmed) > p.MinLength
}
