package presenter

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

const clearLine = "\r\x1b[K"

// TerminalPresenter rewrites the current line with partial results in a dim
// style and prints final results in place.
type TerminalPresenter struct {
	w       io.Writer
	partial lipgloss.Style
	final   lipgloss.Style
	speaker lipgloss.Style
	dirty   bool
}

func NewTerminal(w io.Writer) *TerminalPresenter {
	return &TerminalPresenter{
		w:       w,
		partial: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		final:   lipgloss.NewStyle(),
		speaker: lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true),
	}
}

func (p *TerminalPresenter) SegmentStart() {}

// NewTurn starts a new line marked with a dash.
func (p *TerminalPresenter) NewTurn() {
	p.endLine()
	fmt.Fprint(p.w, p.speaker.Render("-")+" ")
}

func (p *TerminalPresenter) PartialResult(words []asr.Word) {
	fmt.Fprint(p.w, clearLine+p.partial.Render(asr.JoinWords(words)))
	p.dirty = true
}

func (p *TerminalPresenter) FinalResult(words []asr.Word) {
	fmt.Fprint(p.w, clearLine+p.final.Render(asr.JoinWords(words)))
	p.dirty = true
}

func (p *TerminalPresenter) SegmentEnd() {
	p.endLine()
}

func (p *TerminalPresenter) endLine() {
	if p.dirty {
		fmt.Fprintln(p.w)
		p.dirty = false
	}
}
