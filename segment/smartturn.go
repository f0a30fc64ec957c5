package segment

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

var errEmptyAudio = errors.New("smart-turn: empty audio")

// TurnPredictor decides whether the audio so far ends a conversational turn.
type TurnPredictor interface {
	Predict(audio []float32) (complete bool, probability float32, err error)
	Close() error
}

// SmartTurnThreshold is the probability above which a turn is complete.
const SmartTurnThreshold = 0.5

// SmartTurn runs the Smart-Turn v3 ONNX model on the last 8 s of audio.
// Not safe for concurrent use.
type SmartTurn struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32] // (1, 80, 800) log-mel
	output  *ort.Tensor[float32] // (1)
}

// NewSmartTurn loads the model at modelPath. The ONNX Runtime environment
// must be initialized first; see InitRuntime.
func NewSmartTurn(modelPath string) (*SmartTurn, error) {
	input, err := ort.NewTensor(ort.NewShape(1, melBands, melFrames), make([]float32, melBands*melFrames))
	if err != nil {
		return nil, fmt.Errorf("smart-turn: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1))
	if err != nil {
		_ = input.Destroy()
		return nil, fmt.Errorf("smart-turn: output tensor: %w", err)
	}
	sess, err := ort.NewAdvancedSession(modelPath,
		[]string{"input_features"},
		[]string{"output"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil)
	if err != nil {
		_ = input.Destroy()
		_ = output.Destroy()
		return nil, fmt.Errorf("smart-turn: session: %w", err)
	}
	return &SmartTurn{session: sess, input: input, output: output}, nil
}

// Predict scores audio ending at a pause.
func (st *SmartTurn) Predict(audio []float32) (bool, float32, error) {
	if len(audio) == 0 {
		return false, 0, errEmptyAudio
	}
	copy(st.input.GetData(), logMel(audio))
	if err := st.session.Run(); err != nil {
		return false, 0, fmt.Errorf("smart-turn: run: %w", err)
	}
	prob := st.output.GetData()[0]
	return prob > SmartTurnThreshold, prob, nil
}

func (st *SmartTurn) Close() error {
	err := st.session.Destroy()
	_ = st.input.Destroy()
	_ = st.output.Destroy()
	return err
}
