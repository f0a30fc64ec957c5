package asr

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Word is a recognized word with an approximate start time. Start times are
// interpolated from character lengths, not aligned by the model.
type Word struct {
	Text  string        `json:"text"`
	Start time.Duration `json:"start"`
}

// SplitWords splits recognizer text into tokens and merges standalone
// punctuation into the preceding token.
func SplitWords(text string) []string {
	return MergePunctuation(strings.Fields(text))
}

// MergePunctuation appends punctuation-only tokens to the token before them.
// A leading punctuation token has nothing to attach to and is kept.
func MergePunctuation(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(out) > 0 && isPunctuation(tok) {
			out[len(out)-1] += tok
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isPunctuation(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return true
}

// Timestamps spreads the sample span [turnStart, consumed) over tokens in
// proportion to their length in runes. offset is added to every position
// before conversion to a duration.
func Timestamps(tokens []string, turnStart, consumed, offset int64) []Word {
	words := make([]Word, len(tokens))
	var total int64
	for _, tok := range tokens {
		total += int64(utf8.RuneCountInString(tok))
	}
	span := max(consumed-turnStart, 0)

	var before int64
	for i, tok := range tokens {
		pos := turnStart
		if total > 0 {
			pos += span * before / total
		}
		words[i] = Word{Text: tok, Start: samplesToDuration(offset + pos)}
		before += int64(utf8.RuneCountInString(tok))
	}
	return words
}

func samplesToDuration(n int64) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// JoinWords joins word texts with single spaces.
func JoinWords(words []Word) string {
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
	}
	return b.String()
}
