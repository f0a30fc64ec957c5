package wyoming

// Attribution credits the author of a program or model.
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// AsrModel describes one speech recognition model.
type AsrModel struct {
	Name        string      `json:"name"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Description string      `json:"description,omitempty"`
	Version     string      `json:"version,omitempty"`
	Languages   []string    `json:"languages"`
}

// AsrProgram describes a speech-to-text service and its models.
type AsrProgram struct {
	Name                        string      `json:"name"`
	Attribution                 Attribution `json:"attribution"`
	Installed                   bool        `json:"installed"`
	Description                 string      `json:"description,omitempty"`
	Version                     string      `json:"version,omitempty"`
	Models                      []AsrModel  `json:"models"`
	SupportsTranscriptStreaming bool        `json:"supports_transcript_streaming"`
}

// Info is the reply to Describe.
type Info struct {
	Asr []AsrProgram `json:"asr"`
}

func (i Info) Event() *Event { return newEvent(TypeInfo, i, nil) }

func InfoFromEvent(e *Event) (Info, error) {
	var i Info
	err := e.Decode(&i)
	return i, err
}

// Language is the only language the service recognizes.
const Language = "et"

// DefaultInfo describes the local INT8 Estonian streaming recognizer.
func DefaultInfo() Info {
	return Info{
		Asr: []AsrProgram{{
			Name: "kiirkirjutaja-local-int8",
			Attribution: Attribution{
				Name: "Tanel Alumae / TalTech",
				URL:  "https://github.com/alumae/kiirkirjutaja",
			},
			Installed:   true,
			Description: "Estonian real-time speech recognition (INT8, local)",
			Version:     "1.0.0-int8",
			Models: []AsrModel{{
				Name: "streaming-zipformer-int8",
				Attribution: Attribution{
					Name: "TalTech",
					URL:  "https://huggingface.co/TalTechNLP/streaming-zipformer.et-en",
				},
				Installed:   true,
				Description: "Estonian streaming ASR model (INT8 quantized)",
				Version:     "1.0.0",
				Languages:   []string{Language},
			}},
		}},
	}
}
