package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileRecorder_AppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "turns.jsonl")
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}

	ev1 := Event{Timestamp: time.Unix(1, 0).UTC(), Principal: "alice", SessionID: "s1", UserMessage: "hi", AssistantResponse: "hello"}
	ev2 := Event{Timestamp: time.Unix(2, 0).UTC(), Principal: "bob", SessionID: "s2", UserMessage: "foo", AssistantResponse: "bar", Tools: []string{"current_time"}}
	ev3 := Event{Timestamp: time.Unix(3, 0).UTC(), Principal: "alice", SessionID: "s1", UserMessage: "again", AssistantResponse: "sure"}
	for _, ev := range []Event{ev1, ev2, ev3} {
		if err := rec.AppendInteraction(ev); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := rec.LoadInteractions()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("want 3, got %d", len(events))
	}
	if events[0].Principal != "alice" || events[1].Tools[0] != "current_time" {
		t.Fatalf("order mismatch: %+v", events)
	}

	s1, err := rec.LoadSession("s1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if len(s1) != 2 || s1[1].UserMessage != "again" {
		t.Fatalf("unexpected session events: %+v", s1)
	}

	st, err := os.Stat(p)
	if err != nil || st.Size() == 0 {
		t.Fatalf("file not written")
	}
}

func TestFileRecorder_SkipsBrokenLines(t *testing.T) {
	p := filepath.Join(t.TempDir(), "turns.jsonl")
	if err := os.WriteFile(p, []byte("{broken\n\n{\"principal\":\"x\"}\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	rec, err := NewFileRecorder(p)
	if err != nil {
		t.Fatalf("init recorder: %v", err)
	}
	events, err := rec.LoadInteractions()
	if err != nil || len(events) != 1 || events[0].Principal != "x" {
		t.Fatalf("unexpected: %+v %v", events, err)
	}
}
