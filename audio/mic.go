package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// Mic captures float32 mono audio from the default input device.
type Mic struct {
	ctx       *malgo.AllocatedContext
	chunkSize int
	dropped   atomic.Int64

	// devices tracks capture devices not yet torn down.
	devices sync.WaitGroup
}

// OpenMic initializes the audio backend. chunkSize is the number of samples
// per delivered chunk.
func OpenMic(chunkSize int) (*Mic, error) {
	if chunkSize <= 0 {
		chunkSize = SamplesIn(ChunkDuration)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: malgo init: %w", err)
	}
	return &Mic{ctx: ctx, chunkSize: chunkSize}, nil
}

// Capture starts the capture device and delivers chunks until ctx is done,
// then closes the returned channel. Chunks are dropped when the consumer
// falls behind; see Dropped.
func (m *Mic) Capture(ctx context.Context) (<-chan []float32, error) {
	// Chunks of chunkSize float32 sent from the capture callback
	chunkCh := make(chan []float32, 64)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	var buf []float32
	onRecvFrames := func(_, pSample []byte, framecount uint32) {
		if framecount == 0 {
			return
		}
		n := int(framecount) * int(deviceConfig.Capture.Channels)
		for i := 0; i < n; i++ {
			buf = append(buf, float32FromBytes(pSample[i*4:]))
		}
		for len(buf) >= m.chunkSize {
			chunk := make([]float32, m.chunkSize)
			copy(chunk, buf[:m.chunkSize])
			buf = append(buf[:0], buf[m.chunkSize:]...)
			select {
			case chunkCh <- chunk:
			default:
				m.dropped.Add(1)
			}
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return nil, fmt.Errorf("audio: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: device start: %w", err)
	}

	m.releaseOnDone(ctx, func() {
		_ = device.Stop()
		device.Uninit()
	}, chunkCh)
	return chunkCh, nil
}

// releaseOnDone runs release and closes ch once ctx is done. Close waits for
// it.
func (m *Mic) releaseOnDone(ctx context.Context, release func(), ch chan []float32) {
	m.devices.Add(1)
	go func() {
		defer m.devices.Done()
		<-ctx.Done()
		release()
		close(ch)
	}()
}

// Dropped reports how many chunks were discarded because the consumer was slow.
func (m *Mic) Dropped() int64 {
	return m.dropped.Load()
}

// Close waits for every capture device to be released, then releases the
// audio backend. Capture contexts must be cancelled first.
func (m *Mic) Close() error {
	m.devices.Wait()
	if m.ctx == nil {
		return nil
	}
	if err := m.ctx.Uninit(); err != nil {
		return err
	}
	m.ctx.Free()
	return nil
}

func float32FromBytes(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
