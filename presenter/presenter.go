// Package presenter renders decoding progress to a sink: a terminal, a
// word-by-word log, JSON lines, or a WebSocket feed.
package presenter

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// Presenter receives decoding progress. For every segment the calls arrive
// as SegmentStart, then per turn NewTurn followed by any number of
// PartialResult and FinalResult calls, then SegmentEnd.
type Presenter interface {
	SegmentStart()
	NewTurn()
	PartialResult(words []asr.Word)
	FinalResult(words []asr.Word)
	SegmentEnd()
}

// Names accepted by New.
const (
	Terminal = "terminal"
	Words    = "words"
	JSON     = "json"
	Feed     = "feed"
)

// Options configure presenters created by New.
type Options struct {
	// FeedAddr is the listen address of the feed presenter.
	FeedAddr string
	Logger   *log.Logger
}

// New returns the presenter called name writing to w. The feed presenter
// starts listening immediately and must be closed by the caller; check for
// io.Closer.
func New(name string, w io.Writer, opts Options) (Presenter, error) {
	switch name {
	case Terminal, "":
		return NewTerminal(w), nil
	case Words:
		return NewWordByWord(w), nil
	case JSON:
		return NewJSONLines(w), nil
	case Feed:
		return ListenFeed(opts.FeedAddr, opts.Logger)
	default:
		return nil, fmt.Errorf("presenter: unknown presenter %q", name)
	}
}

// Message is the serialized form of one presenter call.
type Message struct {
	Event string     `json:"event"`
	Text  string     `json:"text,omitempty"`
	Words []asr.Word `json:"words,omitempty"`
}

// Message events.
const (
	EventSegmentStart = "segment_start"
	EventNewTurn      = "new_turn"
	EventPartial      = "partial"
	EventFinal        = "final"
	EventSegmentEnd   = "segment_end"
)

func resultMessage(event string, words []asr.Word) Message {
	return Message{Event: event, Text: asr.JoinWords(words), Words: words}
}
