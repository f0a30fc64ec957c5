package wyoming

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

func startTestServer(t *testing.T, rec asr.Recognizer) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Info: DefaultInfo(), Guard: asr.NewGuard(rec), Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not return after cancel")
		}
	})
	return ln.Addr().String()
}

// utterance sends one start/chunk/stop sequence and returns every
// transcript received before the connection goes quiet.
func utterance(t *testing.T, addr string, pcm []byte) []Transcript {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Error(err)
		return nil
	}
	defer conn.Close()

	for _, ev := range []*Event{startEvent(), chunkEvent(pcm), AudioStop{}.Event()} {
		if err := WriteEvent(conn, ev); err != nil {
			t.Error(err)
			return nil
		}
	}

	r := bufio.NewReader(conn)
	var got []Transcript
	for {
		// The first transcript may wait behind the other connection.
		wait := 200 * time.Millisecond
		if len(got) == 0 {
			wait = 5 * time.Second
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		ev, err := ReadEvent(r)
		if err != nil {
			var ne net.Error
			if !errors.As(err, &ne) || !ne.Timeout() {
				t.Error(err)
			}
			return got
		}
		if ev.Type == TypeTranscript {
			tr, _ := TranscriptFromEvent(ev)
			got = append(got, tr)
		}
	}
}

func TestServerSerializesConcurrentConnections(t *testing.T) {
	rec := newCountingRecognizer()
	rec.delay = 50 * time.Millisecond
	addr := startTestServer(t, rec)

	const clients = 2
	var wg sync.WaitGroup
	results := make([][]Transcript, clients)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = utterance(t, addr, make([]byte, 3200))
		}()
	}
	wg.Wait()

	for i, got := range results {
		if len(got) != 1 {
			t.Errorf("client %d got %d transcripts, want 1", i, len(got))
		}
	}
	if rec.overlap.Load() {
		t.Error("transcriptions overlapped")
	}
	if n := rec.created.Load(); n != clients {
		t.Errorf("transcriptions = %d, want %d", n, clients)
	}
}

func TestServerDescribe(t *testing.T) {
	addr := startTestServer(t, newCountingRecognizer())
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := WriteEvent(conn, Describe{}.Event()); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	ev, err := ReadEvent(bufio.NewReader(conn))
	if err != nil {
		t.Fatal(err)
	}
	info, err := InfoFromEvent(ev)
	if err != nil || len(info.Asr) != 1 {
		t.Fatalf("info = %+v, err %v", info, err)
	}
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		network string
		address string
		wantErr error
	}{
		{"tcp://0.0.0.0:10300", "tcp", "0.0.0.0:10300", nil},
		{"tcp://localhost:1234", "tcp", "localhost:1234", nil},
		{"unix:///tmp/kiirkirjutaja.sock", "unix", "/tmp/kiirkirjutaja.sock", nil},
		{"stdio://", "", "", ErrUnsupportedScheme},
		{"http://localhost:80", "", "", ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			network, address, err := ParseURI(tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if network != tt.network || address != tt.address {
				t.Errorf("got %s %s, want %s %s", network, address, tt.network, tt.address)
			}
		})
	}

	if _, _, err := ParseURI("tcp://hostonly"); err == nil {
		t.Error("expected error for tcp URI without port")
	}
}

func TestServerStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Info: DefaultInfo(), Guard: asr.NewGuard(newCountingRecognizer()), Logger: quietLogger()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// An idle client must not keep the server alive.
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
