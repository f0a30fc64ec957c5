package presenter

import (
	"fmt"
	"io"
	"time"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// WordByWordPresenter prints each word on its own line with its start time,
// once the word is stable. A partial word is stable when a later word
// follows it; everything left is printed with the final result. A revised
// word is printed again, followed by the words after it.
type WordByWordPresenter struct {
	w       io.Writer
	printed []string
}

func NewWordByWord(w io.Writer) *WordByWordPresenter {
	return &WordByWordPresenter{w: w}
}

func (p *WordByWordPresenter) SegmentStart() {}

func (p *WordByWordPresenter) NewTurn() {
	p.printed = p.printed[:0]
}

func (p *WordByWordPresenter) PartialResult(words []asr.Word) {
	if len(words) > 0 {
		p.emit(words[:len(words)-1])
	}
}

func (p *WordByWordPresenter) FinalResult(words []asr.Word) {
	p.emit(words)
	p.printed = p.printed[:0]
}

func (p *WordByWordPresenter) SegmentEnd() {}

// emit prints words from the first one that differs from what was printed.
func (p *WordByWordPresenter) emit(words []asr.Word) {
	k := 0
	for k < len(p.printed) && k < len(words) && words[k].Text == p.printed[k] {
		k++
	}
	if k == len(words) {
		return
	}
	p.printed = p.printed[:k]
	for _, w := range words[k:] {
		fmt.Fprintf(p.w, "%s %s\n", formatStart(w.Start), w.Text)
		p.printed = append(p.printed, w.Text)
	}
}

// formatStart renders d as h:mm:ss.cc.
func formatStart(d time.Duration) string {
	cs := d.Milliseconds() / 10
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}
