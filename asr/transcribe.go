package asr

import (
	"fmt"
	"strings"

	"github.com/Yikizi/kiirkirjutaja/audio"
)

// Transcribe decodes a whole utterance of signed 16-bit little-endian mono
// PCM and returns its text. It must run with exclusive access to rec.
func Transcribe(rec Recognizer, pcm []byte) (string, error) {
	samples := audio.PCM16ToFloat32(pcm)

	stream, err := rec.CreateStream()
	if err != nil {
		return "", fmt.Errorf("asr: create stream: %w", err)
	}
	defer stream.Close()

	stream.AcceptWaveform(SampleRate, samples)
	stream.AcceptWaveform(SampleRate, TailPadding())
	stream.InputFinished()
	drain(stream)

	text := stream.Result()
	stream.Reset()
	return strings.TrimSpace(text), nil
}
