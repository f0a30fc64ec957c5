// Package wyoming implements the Wyoming event protocol used by Home
// Assistant voice pipelines: the wire codec, the speech-to-text service
// description, a per-connection handler and a TCP/unix server.
package wyoming

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Version is the protocol version written in event headers.
const Version = "1.5.4"

const (
	// MaxHeaderBytes bounds the JSON header line.
	MaxHeaderBytes = 1 << 20
	// MaxDataBytes bounds the data section.
	MaxDataBytes = 1 << 20
	// MaxPayloadBytes bounds the binary payload of a single event.
	MaxPayloadBytes = 16 << 20
)

// Event types handled by the speech-to-text service.
const (
	TypeDescribe   = "describe"
	TypeInfo       = "info"
	TypeAudioStart = "audio-start"
	TypeAudioChunk = "audio-chunk"
	TypeAudioStop  = "audio-stop"
	TypeTranscribe = "transcribe"
	TypeTranscript = "transcript"
)

var (
	ErrHeaderTooLarge  = errors.New("wyoming: header too large")
	ErrDataTooLarge    = errors.New("wyoming: data too large")
	ErrPayloadTooLarge = errors.New("wyoming: payload too large")
)

// Event is one protocol message. Data is a JSON object (or nil); Payload
// carries binary data such as audio.
type Event struct {
	Type    string
	Data    json.RawMessage
	Payload []byte
}

type header struct {
	Type          string          `json:"type"`
	Version       string          `json:"version,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	DataLength    int             `json:"data_length,omitempty"`
	PayloadLength int             `json:"payload_length,omitempty"`
}

// ReadEvent reads the next event from r. It returns io.EOF when the stream
// ends cleanly between events.
func ReadEvent(r *bufio.Reader) (*Event, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	var h header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("wyoming: decode header: %w", err)
	}
	if h.Type == "" {
		return nil, errors.New("wyoming: header without type")
	}
	if h.DataLength < 0 || h.DataLength > MaxDataBytes {
		return nil, ErrDataTooLarge
	}
	if h.PayloadLength < 0 || h.PayloadLength > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}

	ev := &Event{Type: h.Type, Data: h.Data}
	if h.DataLength > 0 {
		data := make([]byte, h.DataLength)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("wyoming: read data: %w", unexpected(err))
		}
		ev.Data, err = mergeData(h.Data, data)
		if err != nil {
			return nil, err
		}
	}
	if h.PayloadLength > 0 {
		ev.Payload = make([]byte, h.PayloadLength)
		if _, err := io.ReadFull(r, ev.Payload); err != nil {
			return nil, fmt.Errorf("wyoming: read payload: %w", unexpected(err))
		}
	}
	return ev, nil
}

// readLine returns the next non-empty line without its terminator.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > MaxHeaderBytes {
			return nil, ErrHeaderTooLarge
		}
		switch {
		case err == nil:
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// mergeData overlays the data section on inline header data, as older peers
// send both.
func mergeData(inline json.RawMessage, data []byte) (json.RawMessage, error) {
	if len(inline) == 0 {
		return data, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(inline, &merged); err != nil {
		return nil, fmt.Errorf("wyoming: decode inline data: %w", err)
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("wyoming: decode data: %w", err)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// WriteEvent writes ev to w in a single Write call.
func WriteEvent(w io.Writer, ev *Event) error {
	h := header{
		Type:          ev.Type,
		Version:       Version,
		DataLength:    len(ev.Data),
		PayloadLength: len(ev.Payload),
	}
	line, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("wyoming: encode header: %w", err)
	}
	buf := make([]byte, 0, len(line)+1+len(ev.Data)+len(ev.Payload))
	buf = append(buf, line...)
	buf = append(buf, '\n')
	buf = append(buf, ev.Data...)
	buf = append(buf, ev.Payload...)
	_, err = w.Write(buf)
	return err
}

// Decode unmarshals the event data into v. Missing data leaves v unchanged.
func (e *Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("wyoming: decode %s: %w", e.Type, err)
	}
	return nil
}

func newEvent(typ string, data any, payload []byte) *Event {
	ev := &Event{Type: typ, Payload: payload}
	if data != nil {
		// The data types in this package always marshal.
		ev.Data, _ = json.Marshal(data)
	}
	return ev
}

// AudioFormat describes raw PCM audio.
type AudioFormat struct {
	Rate     int `json:"rate"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// AudioStart opens an audio stream.
type AudioStart struct {
	AudioFormat
	Timestamp *int64 `json:"timestamp,omitempty"`
}

func (a AudioStart) Event() *Event { return newEvent(TypeAudioStart, a, nil) }

func AudioStartFromEvent(e *Event) (AudioStart, error) {
	var a AudioStart
	err := e.Decode(&a)
	return a, err
}

// AudioChunk carries PCM audio in the event payload.
type AudioChunk struct {
	AudioFormat
	Timestamp *int64 `json:"timestamp,omitempty"`
	Audio     []byte `json:"-"`
}

func (a AudioChunk) Event() *Event { return newEvent(TypeAudioChunk, a, a.Audio) }

func AudioChunkFromEvent(e *Event) (AudioChunk, error) {
	var a AudioChunk
	err := e.Decode(&a)
	a.Audio = e.Payload
	return a, err
}

// AudioStop closes an audio stream.
type AudioStop struct {
	Timestamp *int64 `json:"timestamp,omitempty"`
}

func (a AudioStop) Event() *Event { return newEvent(TypeAudioStop, a, nil) }

// Transcribe announces that the following audio should be transcribed.
type Transcribe struct {
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}

func (t Transcribe) Event() *Event { return newEvent(TypeTranscribe, t, nil) }

func TranscribeFromEvent(e *Event) (Transcribe, error) {
	var t Transcribe
	err := e.Decode(&t)
	return t, err
}

// Transcript is the recognized text of one utterance.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func (t Transcript) Event() *Event { return newEvent(TypeTranscript, t, nil) }

func TranscriptFromEvent(e *Event) (Transcript, error) {
	var t Transcript
	err := e.Decode(&t)
	return t, err
}

// Describe asks the service for its Info.
type Describe struct{}

func (Describe) Event() *Event { return newEvent(TypeDescribe, nil, nil) }
