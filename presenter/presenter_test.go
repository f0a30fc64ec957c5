package presenter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/Yikizi/kiirkirjutaja/asr"
)

func words(texts ...string) []asr.Word {
	out := make([]asr.Word, len(texts))
	for i, t := range texts {
		out[i] = asr.Word{Text: t, Start: time.Duration(i) * 500 * time.Millisecond}
	}
	return out
}

// drive plays one segment with one turn through p.
func drive(p Presenter) {
	p.SegmentStart()
	p.NewTurn()
	p.PartialResult(words("tere"))
	p.PartialResult(words("tere", "see"))
	p.PartialResult(words("tere", "see", "on"))
	p.FinalResult(words("tere", "see", "on", "test."))
	p.SegmentEnd()
}

func TestWordByWordPrintsEachWordOnce(t *testing.T) {
	var out bytes.Buffer
	drive(NewWordByWord(&out))
	want := "0:00:00.00 tere\n0:00:00.50 see\n0:00:01.00 on\n0:00:01.50 test.\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestWordByWordReprintsRevisedWords(t *testing.T) {
	var out bytes.Buffer
	p := NewWordByWord(&out)
	p.NewTurn()
	p.PartialResult(words("tere", "se"))
	p.PartialResult(words("teretus", "see", "on"))
	p.FinalResult(words("teretus", "see", "on"))
	want := "0:00:00.00 tere\n0:00:00.00 teretus\n0:00:00.50 see\n0:00:01.00 on\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	// Printed words are forgotten after a final result.
	out.Reset()
	p.FinalResult(words("uus"))
	if got := out.String(); got != "0:00:00.00 uus\n" {
		t.Errorf("after final: output = %q", got)
	}
}

func TestWordByWordFinalPrintsDivergedWords(t *testing.T) {
	var out bytes.Buffer
	p := NewWordByWord(&out)
	p.NewTurn()
	p.PartialResult(words("tere", "maa"))
	p.FinalResult(words("tare", "maailm"))
	want := "0:00:00.00 tere\n0:00:00.00 tare\n0:00:00.50 maailm\n"
	if got := out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWordByWordShorterPartialPrintsNothing(t *testing.T) {
	var out bytes.Buffer
	p := NewWordByWord(&out)
	p.NewTurn()
	p.PartialResult(words("tere", "see", "on"))
	out.Reset()
	p.PartialResult(words("tere", "see"))
	if out.Len() != 0 {
		t.Errorf("output = %q", out.String())
	}
}

func TestFormatStart(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00.00"},
		{1234 * time.Millisecond, "0:00:01.23"},
		{61*time.Minute + 5*time.Second, "1:01:05.00"},
	}
	for _, tt := range tests {
		if got := formatStart(tt.d); got != tt.want {
			t.Errorf("formatStart(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestJSONLines(t *testing.T) {
	var out bytes.Buffer
	drive(NewJSONLines(&out))

	var events []string
	sc := bufio.NewScanner(&out)
	var last Message
	for sc.Scan() {
		var m Message
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, m.Event)
		if m.Event == EventFinal {
			last = m
		}
	}
	want := "segment_start new_turn partial partial partial final segment_end"
	if got := strings.Join(events, " "); got != want {
		t.Errorf("events = %s", got)
	}
	if last.Text != "tere see on test." || len(last.Words) != 4 || last.Words[3].Start != 1500*time.Millisecond {
		t.Errorf("final = %+v", last)
	}
}

func TestTerminal(t *testing.T) {
	var out bytes.Buffer
	drive(NewTerminal(&out))
	s := out.String()
	if !strings.Contains(s, clearLine) || !strings.Contains(s, "test.") || !strings.HasSuffix(s, "\n") {
		t.Errorf("output = %q", s)
	}
	if strings.Count(s, "\n") != 1 {
		t.Errorf("expected one finished line, got %q", s)
	}
}

func TestNew(t *testing.T) {
	for _, name := range []string{Terminal, Words, JSON} {
		if _, err := New(name, io.Discard, Options{}); err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
	if _, err := New("youtube", io.Discard, Options{}); err == nil {
		t.Error("expected error for unknown presenter")
	}
}

func TestFeedBroadcast(t *testing.T) {
	p, err := ListenFeed("127.0.0.1:0", log.NewWithOptions(io.Discard, log.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+p.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for p.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.FinalResult(words("tere", "see"))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var m Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatal(err)
	}
	if m.Event != EventFinal || m.Text != "tere see" {
		t.Errorf("message = %+v", m)
	}
}
