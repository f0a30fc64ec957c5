package segment

// segmenter holds state for the segmentation state machine. Pure logic; no
// ONNX, no callbacks.
type segmenter struct {
	cfg segmenterConfig

	preBuffer   [][]float32
	preBufIdx   int
	preBufCount int

	pos int64 // samples consumed so far

	start          int64
	samples        []float32
	flags          []bool
	speechActive   bool
	trailingChunks int
	sinceTrigger   int
}

type segmenterConfig struct {
	preChunks  int
	stopChunks int
	maxChunks  int
	chunkSize  int
}

func newSegmenter(sampleRate, chunkSize, preSpeechMs, stopMs int, maxDurationSec float32) *segmenter {
	preChunks := msToChunks(preSpeechMs, sampleRate, chunkSize)
	// The pre-buffer also holds the triggering chunk.
	preChunks = min(preChunks+1, 256)
	maxChunks := int(maxDurationSec * float32(sampleRate) / float32(chunkSize))
	return &segmenter{
		cfg: segmenterConfig{
			preChunks:  preChunks,
			stopChunks: max(1, msToChunks(stopMs, sampleRate, chunkSize)),
			maxChunks:  max(1, maxChunks),
			chunkSize:  chunkSize,
		},
		preBuffer: make([][]float32, preChunks),
	}
}

// msToChunks rounds ms up to whole chunks.
func msToChunks(ms, sampleRate, chunkSize int) int {
	chunkMs := max(1, chunkSize*1000/sampleRate)
	return ceilDiv(ms, chunkMs)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// segmentResult is returned by processChunk on every chunk.
type segmentResult struct {
	Started        bool
	Ended          bool
	EndedBySilence bool // false when capped at max duration or flushed
	Start          int64
	Samples        []float32
	Flags          []bool // per-chunk speech decisions for Samples
}

// processChunk updates segment state with one VAD decision and chunk.
// chunk must have length cfg.chunkSize. Returns Started=true on transition
// to speech and Ended=true when a segment is finalized.
func (s *segmenter) processChunk(isSpeech bool, chunk []float32) segmentResult {
	var out segmentResult
	if len(chunk) != s.cfg.chunkSize {
		return out
	}
	chunkCopy := make([]float32, len(chunk))
	copy(chunkCopy, chunk)
	s.pos += int64(len(chunk))

	if !s.speechActive {
		s.preBuffer[s.preBufIdx] = chunkCopy
		s.preBufIdx = (s.preBufIdx + 1) % s.cfg.preChunks
		if s.preBufCount < s.cfg.preChunks {
			s.preBufCount++
		}
		if isSpeech {
			s.speechActive = true
			s.trailingChunks = 0
			s.sinceTrigger = 1
			s.drainPreBuffer()
			out.Started = true
			out.Start = s.start
		}
		return out
	}

	s.samples = append(s.samples, chunkCopy...)
	s.flags = append(s.flags, isSpeech)
	s.sinceTrigger++
	if isSpeech {
		s.trailingChunks = 0
	} else {
		s.trailingChunks++
	}

	switch {
	case s.trailingChunks >= s.cfg.stopChunks:
		out = s.finish(true)
	case s.sinceTrigger >= s.cfg.maxChunks:
		out = s.finish(false)
	}
	return out
}

// flush ends an active segment at end of input.
func (s *segmenter) flush() segmentResult {
	if !s.speechActive {
		return segmentResult{}
	}
	return s.finish(false)
}

func (s *segmenter) finish(bySilence bool) segmentResult {
	out := segmentResult{
		Ended:          true,
		EndedBySilence: bySilence,
		Start:          s.start,
		Samples:        s.samples,
		Flags:          s.flags,
	}
	s.resetSegment()
	return out
}

// drainPreBuffer starts the segment with the buffered chunks, oldest first.
// The newest chunk is the one that triggered speech.
func (s *segmenter) drainPreBuffer() {
	n := s.preBufCount
	s.samples = make([]float32, 0, n*s.cfg.chunkSize)
	s.flags = make([]bool, 0, n)
	startIdx := (s.preBufIdx - n + s.cfg.preChunks) % s.cfg.preChunks
	for i := range n {
		idx := (startIdx + i) % s.cfg.preChunks
		s.samples = append(s.samples, s.preBuffer[idx]...)
		s.flags = append(s.flags, i == n-1)
	}
	s.start = s.pos - int64(len(s.samples))
	s.clearPreBuffer()
}

func (s *segmenter) clearPreBuffer() {
	s.preBufIdx = 0
	s.preBufCount = 0
	for i := range s.preBuffer {
		s.preBuffer[i] = nil
	}
}

func (s *segmenter) resetSegment() {
	s.samples = nil
	s.flags = nil
	s.speechActive = false
	s.trailingChunks = 0
	s.sinceTrigger = 0
	s.clearPreBuffer()
}

// reset also rewinds the sample position.
func (s *segmenter) reset() {
	s.resetSegment()
	s.pos = 0
}
