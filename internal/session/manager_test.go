package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/timeline"
	"github.com/framecraft/studio/internal/workflow"
)

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(gateway.NewStubGateway(testLogger()), nil, nil, testLogger())
	ctx := context.Background()

	a := m.Create(ctx, Options{ProjectID: "p1"})
	b := m.Create(ctx, Options{ProjectID: "p2"})
	c := m.Create(ctx, Options{ProjectID: "p1"})

	if m.Count() != 3 || len(m.List()) != 3 {
		t.Fatalf("Count() = %d, List() = %d", m.Count(), len(m.List()))
	}
	got, err := m.Get(b.ID)
	if err != nil || got != b {
		t.Errorf("Get() = %v, %v", got, err)
	}

	if n := m.CloseProject("p1"); n != 2 {
		t.Errorf("CloseProject() = %d, want 2", n)
	}
	for _, id := range []string{a.ID, c.ID} {
		if _, err := m.Get(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%s) after close = %v", id, err)
		}
	}
	if err := m.Close(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close() twice = %v, want ErrNotFound", err)
	}
	if _, _, err := m.Events("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Events(missing) = %v", err)
	}

	m.CloseAll()
	if m.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d", m.Count())
	}
}

func TestManager_RestoresProjectAnalyses(t *testing.T) {
	history := newMemoryHistory()
	ctx := context.Background()
	end := 2.0
	history.RecordAnalysis(ctx, "p1", project.KindTranscription, gateway.Transcription{
		Segments: []timeline.TranscriptSegment{{StartTime: 0, EndTime: 4, Text: "restored"}},
	})
	history.RecordAnalysis(ctx, "p1", project.KindVideoContext, gateway.VideoContext{
		Timing: gateway.Timing{Pauses: []timeline.Annotation{{StartTime: 1, EndTime: &end}}},
	})

	m := NewManager(gateway.NewStubGateway(testLogger()), history, nil, testLogger())
	defer m.CloseAll()
	s := m.Create(ctx, Options{ProjectID: "p1"})

	if s.Store().Duration() != 4 {
		t.Errorf("duration = %v, want the transcript end", s.Store().Duration())
	}
	active := s.ActiveAt(1.5)
	if active.Caption == nil || active.Caption.Text != "restored" {
		t.Errorf("caption = %+v", active.Caption)
	}
	if p, ok := active.Annotations[timeline.KindPause]; !ok || p.Kind != timeline.KindPause {
		t.Errorf("pause = %+v, %v", p, ok)
	}
	if s.Transcription() == nil {
		t.Error("Transcription() should be restored")
	}
}

func nextEvent(t *testing.T, ch <-chan Event, typ EventType) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed while waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
		}
	}
}

func TestSession_Events(t *testing.T) {
	m := NewManager(gateway.NewStubGateway(testLogger()), nil, nil, testLogger())
	ctx := context.Background()
	s := m.Create(ctx, Options{VideoURL: "https://cdn.example.com/v.mp4", Duration: 30})

	ch, cancel, err := m.Events(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if _, err := s.Transcribe(ctx, gateway.MediaInput{}); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, ch, EventTimeline)
	if view, ok := ev.Data.(TimelineView); !ok || len(view.Segments) != 5 || ev.SessionID != s.ID {
		t.Errorf("timeline event = %+v", ev)
	}

	if _, err := s.AnalyzeEnhancements(ctx); err != nil {
		t.Fatal(err)
	}
	ev = nextEvent(t, ch, EventEnhancements)
	if snap, ok := ev.Data.(workflow.EnhancementSnapshot); !ok || snap.Status != workflow.StatusAnalyzing {
		t.Errorf("first enhancement event = %+v", ev.Data)
	}

	if err := m.Close(s.ID); err != nil {
		t.Fatal(err)
	}
	nextEvent(t, ch, EventClosed)
	if _, ok := <-ch; ok {
		t.Error("channel should close with the session")
	}
}

func TestBroadcaster_DropsForSlowSubscriber(t *testing.T) {
	b := newBroadcaster(testLogger())
	ch, cancel := b.subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		b.publish(Event{Type: EventTimeline})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	cancel()
	cancel()

	b.close(Event{Type: EventClosed})
	late, _ := b.subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after close should yield a closed channel")
	}
}
