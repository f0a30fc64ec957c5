//go:build !sherpa

package asr

import "errors"

// ErrNativeUnavailable indicates the sherpa-onnx backend is not compiled in.
var ErrNativeUnavailable = errors.New("asr: sherpa-onnx backend not available (build with -tags sherpa)")

// NativeAvailable reports that no native recognizer is compiled in.
func NativeAvailable() bool { return false }

// NewSherpa validates cfg and returns ErrNativeUnavailable.
func NewSherpa(cfg SherpaConfig) (Recognizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return nil, ErrNativeUnavailable
}
