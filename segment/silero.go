package segment

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sileroContextSamples = 64
	sileroInputSamples   = sileroContextSamples + RequiredChunkSize // 576
	sileroStateSize      = 2 * 1 * 128

	// Recurrent state is cleared after this many samples so that long
	// recordings do not drift.
	sileroResetSamples = 5 * RequiredSampleRate
)

// SileroVAD wraps the Silero VAD ONNX model. It carries a 64-sample context
// and recurrent state across chunks. Not safe for concurrent use.
type SileroVAD struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32] // (1, 576)
	state    *ort.Tensor[float32] // (2, 1, 128)
	sr       *ort.Tensor[int64]   // (1,) = 16000
	output   *ort.Tensor[float32] // (1, 1) speech prob
	stateOut *ort.Tensor[float32] // (2, 1, 128) new state

	context    [sileroContextSamples]float32
	sinceReset int
}

// NewSileroVAD loads the model at modelPath. The ONNX Runtime environment
// must be initialized first; see InitRuntime.
func NewSileroVAD(modelPath string) (_ *SileroVAD, err error) {
	var tensors []ort.Value
	defer func() {
		if err != nil {
			destroyAll(tensors)
		}
	}()

	input, err := ort.NewTensor(ort.NewShape(1, sileroInputSamples), make([]float32, sileroInputSamples))
	if err != nil {
		return nil, fmt.Errorf("silero: input tensor: %w", err)
	}
	tensors = append(tensors, input)
	state, err := ort.NewTensor(ort.NewShape(2, 1, 128), make([]float32, sileroStateSize))
	if err != nil {
		return nil, fmt.Errorf("silero: state tensor: %w", err)
	}
	tensors = append(tensors, state)
	sr, err := ort.NewTensor(ort.NewShape(1), []int64{RequiredSampleRate})
	if err != nil {
		return nil, fmt.Errorf("silero: sr tensor: %w", err)
	}
	tensors = append(tensors, sr)
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return nil, fmt.Errorf("silero: output tensor: %w", err)
	}
	tensors = append(tensors, output)
	stateOut, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128))
	if err != nil {
		return nil, fmt.Errorf("silero: state output tensor: %w", err)
	}
	tensors = append(tensors, stateOut)

	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{input, state, sr},
		[]ort.Value{output, stateOut},
		nil)
	if err != nil {
		return nil, fmt.Errorf("silero: session: %w", err)
	}
	return &SileroVAD{
		session:  sess,
		input:    input,
		state:    state,
		sr:       sr,
		output:   output,
		stateOut: stateOut,
	}, nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		_ = v.Destroy()
	}
}

// Reset clears the context window and recurrent state.
func (v *SileroVAD) Reset() {
	v.context = [sileroContextSamples]float32{}
	v.state.ZeroContents()
	v.sinceReset = 0
}

// SpeechProb returns the speech probability for a 512-sample chunk. Tensors
// are reused between calls.
func (v *SileroVAD) SpeechProb(chunk []float32) (float32, error) {
	if len(chunk) != RequiredChunkSize {
		return 0, ErrChunkSize
	}
	if v.sinceReset >= sileroResetSamples {
		v.Reset()
	}
	v.sinceReset += len(chunk)

	in := v.input.GetData()
	copy(in[:sileroContextSamples], v.context[:])
	copy(in[sileroContextSamples:], chunk)
	copy(v.context[:], in[sileroInputSamples-sileroContextSamples:])

	if err := v.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: run: %w", err)
	}
	prob := v.output.GetData()[0]
	copy(v.state.GetData(), v.stateOut.GetData())
	return prob, nil
}

// Close destroys the session and its tensors.
func (v *SileroVAD) Close() error {
	err := v.session.Destroy()
	destroyAll([]ort.Value{v.input, v.state, v.sr, v.output, v.stateOut})
	return err
}
