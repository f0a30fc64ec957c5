package audio

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestMicCloseWaitsForDeviceRelease(t *testing.T) {
	m := &Mic{}
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan []float32)

	var released atomic.Bool
	m.releaseOnDone(ctx, func() {
		time.Sleep(50 * time.Millisecond)
		released.Store(true)
	}, ch)

	cancel()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !released.Load() {
		t.Fatal("Close returned before the device was released")
	}
	if _, ok := <-ch; ok {
		t.Error("chunk channel still open")
	}
}
