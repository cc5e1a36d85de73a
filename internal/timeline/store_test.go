package timeline

import (
	"io"
	"log/slog"
	"math"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func f(v float64) *float64 { return &v }

func examplePauses() []Annotation {
	return []Annotation{
		{StartTime: 2, EndTime: f(4), Type: "breath"},
		{StartTime: 30, EndTime: f(31.5), Type: "dramatic"},
		{StartTime: 80, EndTime: f(82), Type: "dead_air"},
	}
}

func TestStore_PauseScenario(t *testing.T) {
	s := NewStore(90, testLogger())
	s.ReplaceAnnotations(KindPause, examplePauses())

	got, ok := s.AnnotationAt(KindPause, s.Seek(3))
	if !ok {
		t.Fatal("expected an active pause at t=3")
	}
	if got.StartTime != 2 || got.Kind != KindPause {
		t.Errorf("active pause = %+v, want the one starting at 2", got)
	}

	if _, ok := s.AnnotationAt(KindPause, 10); ok {
		t.Error("no pause should be active at t=10")
	}
}

func TestActiveAt_NonOverlapping(t *testing.T) {
	segs := []TranscriptSegment{
		{StartTime: 0, EndTime: 1.9, Text: "a"},
		{StartTime: 2, EndTime: 3.9, Text: "b"},
		{StartTime: 5, EndTime: 7, Text: "c"},
	}

	for q := -1.0; q <= 8; q += 0.05 {
		var want string
		for _, seg := range segs {
			if q >= seg.StartTime && q <= seg.EndTime {
				want = seg.Text
			}
		}
		got, _, ok := ActiveAt(segs, q)
		if want == "" {
			if ok {
				t.Fatalf("ActiveAt(%v) = %q, want none", q, got.Text)
			}
			continue
		}
		if !ok || got.Text != want {
			t.Fatalf("ActiveAt(%v) = %q, %v; want %q", q, got.Text, ok, want)
		}

		sorted, _, ok := ActiveAtSorted(segs, q)
		if !ok || sorted.Text != want {
			t.Fatalf("ActiveAtSorted(%v) = %q, %v; want %q", q, sorted.Text, ok, want)
		}
	}
}

func TestActiveAtSorted_SharedEdge(t *testing.T) {
	segs := []TranscriptSegment{
		{StartTime: 0, EndTime: 2, Text: "a"},
		{StartTime: 2, EndTime: 4, Text: "b"},
		{StartTime: 4, EndTime: 6, Text: "c"},
	}
	for _, q := range []float64{0, 1, 2, 3, 4, 5, 6, 7} {
		want, wantIdx, wantOK := ActiveAt(segs, q)
		got, idx, ok := ActiveAtSorted(segs, q)
		if ok != wantOK || idx != wantIdx || got.Text != want.Text {
			t.Errorf("ActiveAtSorted(%v) = %q idx %d, want %q idx %d", q, got.Text, idx, want.Text, wantIdx)
		}
	}
}

func TestStore_CaptionAtOverlapping(t *testing.T) {
	s := NewStore(20, testLogger())
	s.SetTranscript([]TranscriptSegment{
		{StartTime: 0, EndTime: 10, Text: "wide"},
		{StartTime: 2, EndTime: 4, Text: "narrow"},
	})
	if c, ok := s.CaptionAt(3); !ok || c.Text != "wide" || c.Index != 0 {
		t.Errorf("CaptionAt(3) = %+v, %v; want the first overlapping segment", c, ok)
	}
}

func TestActiveAt_OverlapReturnsFirst(t *testing.T) {
	segs := []TranscriptSegment{
		{StartTime: 0, EndTime: 10, Text: "wide"},
		{StartTime: 2, EndTime: 4, Text: "narrow"},
	}
	got, idx, ok := ActiveAt(segs, 3)
	if !ok || idx != 0 || got.Text != "wide" {
		t.Errorf("ActiveAt(3) = %q idx %d, want wide idx 0", got.Text, idx)
	}
}

func TestAnnotation_PointSpan(t *testing.T) {
	a := Annotation{StartTime: 10}
	start, end := a.Bounds()
	if start != 10 || end != 10+PointSpan {
		t.Errorf("Bounds() = (%v, %v), want (10, %v)", start, end, 10+PointSpan)
	}
}

func TestNormalizeSegments(t *testing.T) {
	in := []TranscriptSegment{
		{StartTime: 5, EndTime: 6, Text: "third"},
		{StartTime: 1, EndTime: 1, Text: "empty"},
		{StartTime: 0, EndTime: 2, Text: "first"},
		{StartTime: 3, EndTime: 2, Text: "backwards"},
		{StartTime: 0, EndTime: 1, Text: "second"},
	}
	out, dropped := NormalizeSegments(in)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	want := []string{"first", "second", "third"}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Text != w {
			t.Errorf("out[%d] = %q, want %q", i, out[i].Text, w)
		}
	}
}

func TestStore_CaptionOverrides(t *testing.T) {
	s := NewStore(10, testLogger())
	s.SetTranscript([]TranscriptSegment{
		{StartTime: 0, EndTime: 2, Text: "helo world"},
		{StartTime: 2.5, EndTime: 4, Text: "second"},
	})

	if err := s.SetCaptionOverride(0, "hello world"); err != nil {
		t.Fatalf("SetCaptionOverride() error = %v", err)
	}
	if err := s.SetCaptionOverride(5, "nope"); err == nil {
		t.Error("SetCaptionOverride(5) should fail")
	}

	c, ok := s.CaptionAt(1)
	if !ok || c.Text != "hello world" || !c.Edited {
		t.Errorf("CaptionAt(1) = %+v, want edited hello world", c)
	}
	if segs := s.Segments(); segs[0].Text != "helo world" {
		t.Errorf("original segment mutated: %q", segs[0].Text)
	}
	if got := s.Transcript(); got != "hello world second" {
		t.Errorf("Transcript() = %q", got)
	}

	if err := s.ClearCaptionOverride(0); err != nil {
		t.Fatalf("ClearCaptionOverride(0) error = %v", err)
	}
	if c, _ := s.CaptionAt(1); c.Text != "helo world" || c.Edited {
		t.Errorf("CaptionAt(1) after clear = %+v, want original text", c)
	}
	if err := s.ClearCaptionOverride(5); err == nil {
		t.Error("ClearCaptionOverride(5) should fail")
	}

	s.SetTranscript([]TranscriptSegment{{StartTime: 0, EndTime: 2, Text: "fresh"}})
	if len(s.Overrides()) != 0 {
		t.Error("overrides should be cleared on re-ingest")
	}
}

func TestStore_SeekClamps(t *testing.T) {
	s := NewStore(90, testLogger())
	if got := s.Seek(120); got != 90 {
		t.Errorf("Seek(120) = %v, want 90", got)
	}
	if got := s.Seek(-3); got != 0 {
		t.Errorf("Seek(-3) = %v, want 0", got)
	}
	s.Seek(80)
	s.SetDuration(60)
	if got := s.CurrentTime(); got != 60 {
		t.Errorf("CurrentTime() after shrink = %v, want 60", got)
	}
}

func TestStore_ActiveAtSnapshot(t *testing.T) {
	s := NewStore(90, testLogger())
	s.SetTranscript([]TranscriptSegment{{StartTime: 0, EndTime: 5, Text: "intro"}})
	s.ReplaceAnnotations(KindPause, examplePauses())
	s.SetOverlays([]Overlay{{ID: "o1", Kind: "text", StartTime: 1, EndTime: 6}})

	got := s.ActiveAt(3)
	if got.Caption == nil || got.Caption.Text != "intro" {
		t.Errorf("caption = %+v", got.Caption)
	}
	if _, ok := got.Annotations[KindPause]; !ok {
		t.Error("pause missing from snapshot")
	}
	if len(got.Overlays) != 1 {
		t.Errorf("overlays = %d, want 1", len(got.Overlays))
	}
	if !approx(got.Percent, 100*3.0/90) {
		t.Errorf("percent = %v", got.Percent)
	}

	empty := s.ActiveAt(200)
	if empty.Caption != nil || len(empty.Annotations) != 0 || len(empty.Overlays) != 0 {
		t.Errorf("ActiveAt(200) = %+v, want empty", empty)
	}

	if nan := s.ActiveAt(math.NaN()); nan.Time != 0 || nan.Percent != 0 || nan.Caption != nil {
		t.Errorf("ActiveAt(NaN) = %+v, want zero value", nan)
	}
}

func TestStore_ActiveAtPastDuration(t *testing.T) {
	s := NewStore(10, testLogger())
	s.ReplaceAnnotations(KindKeyMoment, []Annotation{{StartTime: 9.5, Type: "reveal"}})

	if _, ok := s.ActiveAt(10).Annotations[KindKeyMoment]; !ok {
		t.Error("point annotation should be active at the last instant")
	}
	if got := s.ActiveAt(10.5); len(got.Annotations) != 0 {
		t.Errorf("ActiveAt(10.5) annotations = %v, want none past the duration", got.Annotations)
	}
}
