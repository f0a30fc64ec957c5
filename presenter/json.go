package presenter

import (
	"encoding/json"
	"io"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

// JSONLinesPresenter writes one Message per call as a JSON line.
type JSONLinesPresenter struct {
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLinesPresenter {
	return &JSONLinesPresenter{enc: json.NewEncoder(w)}
}

func (p *JSONLinesPresenter) write(m Message) {
	// Write errors on stdout are not recoverable here.
	_ = p.enc.Encode(m)
}

func (p *JSONLinesPresenter) SegmentStart() { p.write(Message{Event: EventSegmentStart}) }

func (p *JSONLinesPresenter) NewTurn() { p.write(Message{Event: EventNewTurn}) }

func (p *JSONLinesPresenter) PartialResult(words []asr.Word) {
	p.write(resultMessage(EventPartial, words))
}

func (p *JSONLinesPresenter) FinalResult(words []asr.Word) {
	p.write(resultMessage(EventFinal, words))
}

func (p *JSONLinesPresenter) SegmentEnd() { p.write(Message{Event: EventSegmentEnd}) }
