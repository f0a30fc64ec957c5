package segment

import (
	"math"
	"sync"
)

// Whisper log-mel parameters at 16 kHz.
const (
	melNFFT     = 400
	melHop      = 160
	melBands    = 80
	melBins     = melNFFT/2 + 1
	melSamples  = 8 * RequiredSampleRate // 128000
	melFrames   = 800
	melFloorLog = 1e-10
)

// melTables are computed once and shared; they are read-only afterwards.
type melTables struct {
	window  [melNFFT]float64
	cos     []float64 // melBins x melNFFT
	sin     []float64
	filters []float32 // melBands x melBins
}

var (
	melOnce   sync.Once
	melShared *melTables
)

func getMelTables() *melTables {
	melOnce.Do(func() {
		t := &melTables{
			cos:     make([]float64, melBins*melNFFT),
			sin:     make([]float64, melBins*melNFFT),
			filters: melFilterbank(melBands, melBins),
		}
		for i := range melNFFT {
			t.window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/melNFFT))
		}
		for k := range melBins {
			for i := range melNFFT {
				angle := -2 * math.Pi * float64(k*i%melNFFT) / melNFFT
				t.cos[k*melNFFT+i] = math.Cos(angle)
				t.sin[k*melNFFT+i] = math.Sin(angle)
			}
		}
		melShared = t
	})
	return melShared
}

// logMel converts mono audio to log-mel features of shape (80, 800), using
// the last 8 s of audio or left-padding with zeros.
func logMel(audio []float32) []float32 {
	padded := make([]float32, melSamples)
	if n := len(audio); n >= melSamples {
		copy(padded, audio[n-melSamples:])
	} else {
		copy(padded[melSamples-n:], audio)
	}

	t := getMelTables()
	out := make([]float32, melBands*melFrames)
	frame := make([]float64, melNFFT)
	power := make([]float32, melBins)
	// 798 full frames fit in 8 s; the last columns stay at zero.
	for f := 0; f < melFrames; f++ {
		offset := f * melHop
		if offset+melNFFT > len(padded) {
			break
		}
		for i := range melNFFT {
			frame[i] = float64(padded[offset+i]) * t.window[i]
		}
		for k := range melBins {
			cs := t.cos[k*melNFFT : (k+1)*melNFFT]
			sn := t.sin[k*melNFFT : (k+1)*melNFFT]
			var re, im float64
			for i, x := range frame {
				re += x * cs[i]
				im += x * sn[i]
			}
			power[k] = float32((re*re + im*im) / (melNFFT * melNFFT))
		}
		for m := range melBands {
			row := t.filters[m*melBins : (m+1)*melBins]
			var v float32
			for k, w := range row {
				v += w * power[k]
			}
			out[m*melFrames+f] = float32(math.Log(float64(max(v, melFloorLog))))
		}
	}
	return out
}

// melFilterbank builds triangular filters spaced on the mel scale between
// 20 Hz and Nyquist.
func melFilterbank(nMels, nBins int) []float32 {
	const lowHz, highHz = 20.0, RequiredSampleRate / 2.0
	lowMel, highMel := hzToMel(lowHz), hzToMel(highHz)
	hz := make([]float64, nMels+2)
	for i := range hz {
		hz[i] = melToHz(lowMel + (highMel-lowMel)*float64(i)/float64(nMels+1))
	}
	filters := make([]float32, nMels*nBins)
	for m := range nMels {
		left, center, right := hz[m], hz[m+1], hz[m+2]
		for k := range nBins {
			f := float64(k) * RequiredSampleRate / float64(2*(nBins-1))
			var v float64
			switch {
			case f >= left && f <= center:
				v = (f - left) / (center - left)
			case f > center && f <= right:
				v = (right - f) / (right - center)
			}
			filters[m*nBins+k] = float32(v)
		}
	}
	return filters
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}
