package segment

import (
	"iter"

	"github.com/Yikizi/kiirkirjutaja/audio"
)

// Segment is one stretch of speech delimited by the VAD.
type Segment struct {
	// Start is the absolute sample offset of the first sample.
	Start   int64
	Samples []float32
	// EndedBySilence is false when the segment hit the duration cap or the
	// end of input.
	EndedBySilence bool
	// Turns partition Samples. There is always at least one.
	Turns []Turn
}

// Turn is a contiguous part of a segment that ends a conversational turn.
type Turn struct {
	// Offset is relative to the segment start.
	Offset  int64
	Samples []float32
}

// Chunks yields the turn audio in slices of size samples.
func (t Turn) Chunks(size int) iter.Seq[[]float32] {
	return audio.Chunks(t.Samples, size)
}

// TurnSplitter cuts segments at inner pauses the predictor judges to end a
// turn.
type TurnSplitter struct {
	chunkSize   int
	pauseChunks int
	predictor   TurnPredictor
	// OnPrediction, if set, receives every prediction made.
	OnPrediction func(complete bool, probability float32)
}

// NewTurnSplitter returns a splitter that consults predictor after pauseMs
// of non-speech. A nil predictor never splits.
func NewTurnSplitter(predictor TurnPredictor, pauseMs int) *TurnSplitter {
	return &TurnSplitter{
		chunkSize:   RequiredChunkSize,
		pauseChunks: max(1, msToChunks(pauseMs, RequiredSampleRate, RequiredChunkSize)),
		predictor:   predictor,
	}
}

// Split partitions samples into turns. flags holds one speech decision per
// chunk of samples. A pause is evaluated once, when it reaches the minimum
// length, and only if speech follows it later in the segment.
func (s *TurnSplitter) Split(samples []float32, flags []bool) ([]Turn, error) {
	whole := []Turn{{Offset: 0, Samples: samples}}
	if s.predictor == nil || len(samples) == 0 {
		return whole, nil
	}
	lastSpeech := -1
	for i, f := range flags {
		if f {
			lastSpeech = i
		}
	}

	var turns []Turn
	turnStart := 0 // chunk index
	spoke := false
	pause := 0
	for i, speech := range flags {
		if speech {
			spoke = true
			pause = 0
			continue
		}
		pause++
		if pause != s.pauseChunks || !spoke || i >= lastSpeech {
			continue
		}
		end := min((i+1)*s.chunkSize, len(samples))
		complete, prob, err := s.predictor.Predict(samples[turnStart*s.chunkSize : end])
		if err != nil {
			return whole, err
		}
		if s.OnPrediction != nil {
			s.OnPrediction(complete, prob)
		}
		if !complete {
			continue
		}
		turns = append(turns, Turn{
			Offset:  int64(turnStart * s.chunkSize),
			Samples: samples[turnStart*s.chunkSize : end],
		})
		turnStart = i + 1
		spoke = false
	}
	turns = append(turns, Turn{
		Offset:  int64(turnStart * s.chunkSize),
		Samples: samples[min(turnStart*s.chunkSize, len(samples)):],
	})
	return turns, nil
}
