package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/framecraft/studio/internal/editor"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/timeline"
	"github.com/framecraft/studio/internal/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryHistory keeps analyses and edits in memory.
type memoryHistory struct {
	mu       sync.Mutex
	analyses map[project.AnalysisKind][]byte
	edits    []string
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{analyses: make(map[project.AnalysisKind][]byte)}
}

func (h *memoryHistory) RecordAnalysis(_ context.Context, _ string, kind project.AnalysisKind, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.analyses[kind] = b
	h.mu.Unlock()
	return nil
}

func (h *memoryHistory) LatestAnalysis(_ context.Context, _ string, kind project.AnalysisKind, v any) (bool, error) {
	h.mu.Lock()
	b, ok := h.analyses[kind]
	h.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, v)
}

func (h *memoryHistory) RecordEdit(_ context.Context, _, _, action string, _ any) error {
	h.mu.Lock()
	h.edits = append(h.edits, action)
	h.mu.Unlock()
	return nil
}

func (h *memoryHistory) hasAnalysis(kind project.AnalysisKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.analyses[kind]
	return ok
}

func (h *memoryHistory) editLog() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.edits...)
}

// chatGateway is the stub gateway with a scripted chat reply.
type chatGateway struct {
	*gateway.StubGateway
	reply string
}

func (g *chatGateway) ChatStream(ctx context.Context, req gateway.ChatRequest) (io.ReadCloser, error) {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"delta": map[string]any{"content": g.reply}}},
	})
	return io.NopCloser(strings.NewReader(fmt.Sprintf("data: %s\n\ndata: [DONE]\n\n", b))), nil
}

func newTestSession(t *testing.T, gw gateway.Gateway) (*Session, *memoryHistory) {
	t.Helper()
	if gw == nil {
		gw = gateway.NewStubGateway(testLogger())
	}
	history := newMemoryHistory()
	m := NewManager(gw, history, nil, testLogger())
	s := m.Create(context.Background(), Options{
		ProjectID: "p1",
		Title:     "Desk setup",
		VideoURL:  "https://cdn.example.com/desk.mp4",
		Duration:  30,
	})
	t.Cleanup(m.CloseAll)
	return s, history
}

func transcribe(t *testing.T, s *Session) {
	t.Helper()
	if _, err := s.Transcribe(context.Background(), gateway.MediaInput{}); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestSession_TranscribeAndCaptions(t *testing.T) {
	s, history := newTestSession(t, nil)
	ctx := context.Background()

	transcribe(t, s)
	if n := len(s.Store().Segments()); n != 5 {
		t.Fatalf("segments = %d, want 5", n)
	}
	if !history.hasAnalysis(project.KindTranscription) {
		t.Error("transcription was not persisted")
	}

	active := s.ActiveAt(7)
	if active.Caption == nil || active.Caption.Text != "Today we are building a desk setup from scratch." {
		t.Fatalf("caption at 7s = %+v", active.Caption)
	}

	if err := s.SetCaption(ctx, 1, "Today we build a desk."); err != nil {
		t.Fatalf("SetCaption() error = %v", err)
	}
	active = s.Seek(7)
	if active.Caption == nil || active.Caption.Text != "Today we build a desk." || !active.Caption.Edited {
		t.Errorf("edited caption = %+v", active.Caption)
	}
	if s.Store().CurrentTime() != 7 {
		t.Errorf("CurrentTime() = %v", s.Store().CurrentTime())
	}

	var verr *workflow.ValidationError
	if err := s.SetCaption(ctx, 9, "x"); !errors.As(err, &verr) {
		t.Errorf("SetCaption(9) = %v, want ValidationError", err)
	}

	vtt := s.CaptionsVTT()
	if !strings.Contains(vtt, "00:00:06.000 --> 00:00:10.800\n<v A>Today we build a desk.") {
		t.Errorf("VTT missing edited cue:\n%s", vtt)
	}
	if edits := history.editLog(); len(edits) != 1 || edits[0] != "set_caption" {
		t.Errorf("edits = %v", edits)
	}

	if err := s.ResetCaption(ctx, 1); err != nil {
		t.Fatalf("ResetCaption() error = %v", err)
	}
	if c := s.ActiveAt(7).Caption; c == nil || c.Edited || c.Text != "Today we are building a desk setup from scratch." {
		t.Errorf("caption after reset = %+v", c)
	}
	if err := s.ResetCaption(ctx, 9); !errors.As(err, &verr) {
		t.Errorf("ResetCaption(9) = %v, want ValidationError", err)
	}
}

func TestSession_TranscribeValidation(t *testing.T) {
	m := NewManager(gateway.NewStubGateway(testLogger()), nil, nil, testLogger())
	defer m.CloseAll()
	s := m.Create(context.Background(), Options{})

	tests := []struct {
		name string
		in   gateway.MediaInput
	}{
		{"no media", gateway.MediaInput{}},
		{"transcript only", gateway.MediaInput{Transcript: "hello"}},
		{"two inputs", gateway.MediaInput{VideoURL: "https://a/b.mp4", VideoBytes: []byte("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *workflow.ValidationError
			if _, err := s.Transcribe(context.Background(), tt.in); !errors.As(err, &verr) {
				t.Errorf("Transcribe() = %v, want ValidationError", err)
			}
		})
	}
}

func TestSession_AnalyzeContextIngestsTiming(t *testing.T) {
	s, history := newTestSession(t, nil)
	transcribe(t, s)

	if _, err := s.AnalyzeContext(context.Background(), gateway.MediaInput{}); err != nil {
		t.Fatalf("AnalyzeContext() error = %v", err)
	}
	if !history.hasAnalysis(project.KindVideoContext) {
		t.Error("context was not persisted")
	}

	if n := len(s.Store().Annotations(timeline.KindPause)); n != 4 {
		t.Errorf("pauses = %d, want 4", n)
	}
	active := s.ActiveAt(24.5)
	km, ok := active.Annotations[timeline.KindKeyMoment]
	if !ok || km.Kind != timeline.KindKeyMoment || km.Description != "Final result" {
		t.Errorf("key moment at 24.5 = %+v (found %v)", km, ok)
	}
	if _, ok := s.ActiveAt(26).Annotations[timeline.KindKeyMoment]; ok {
		t.Error("point key moment should end after its span")
	}

	chat := s.Chat().Snapshot().Context
	if !strings.Contains(chat.Analysis, "Summary: A desk setup walkthrough.") || chat.Platform != "youtube" {
		t.Errorf("chat context = %+v", chat)
	}
}

func TestSession_StoryboardAndApply(t *testing.T) {
	s, history := newTestSession(t, nil)
	ctx := context.Background()
	transcribe(t, s)

	var verr *workflow.ValidationError
	if _, err := s.GenerateStoryboard(ctx, workflow.StyleChoice{Name: "Bold"}); err == nil {
		t.Fatal("GenerateStoryboard() before context analysis should fail")
	}
	if _, err := s.AnalyzeContext(ctx, gateway.MediaInput{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GenerateStoryboard(ctx, workflow.StyleChoice{Name: "vaporwave"}); !errors.As(err, &verr) {
		t.Errorf("unknown style = %v, want ValidationError", err)
	}

	if _, err := s.GenerateStoryboard(ctx, workflow.StyleChoice{Name: "Bold"}); err != nil {
		t.Fatalf("GenerateStoryboard() error = %v", err)
	}
	snap := s.Animation().Snapshot()
	if snap.Style == nil || snap.Style.Settings["motion"] != "pop" {
		t.Errorf("style = %+v, want resolved built-in settings", snap.Style)
	}
	if !history.hasAnalysis(project.KindStoryboard) {
		t.Error("storyboard was not persisted")
	}

	if err := s.Animation().ApproveAll(); err != nil {
		t.Fatal(err)
	}
	if err := s.Animation().PreviewAnimations(); err != nil {
		t.Fatal(err)
	}
	applied, err := s.ApplyAnimations(ctx)
	if err != nil {
		t.Fatalf("ApplyAnimations() error = %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("applied = %d, want 3", len(applied))
	}

	overlays := s.ActiveAt(13).Overlays
	if len(overlays) != 1 || overlays[0].ID != "el-3" || overlays[0].StartTime != 12 || overlays[0].EndTime != 16 {
		t.Errorf("overlays at 13s = %+v", overlays)
	}
	if pos, ok := overlays[0].Props["position"].(gateway.Position); !ok || pos.Y != 0.85 {
		t.Errorf("overlay position = %v", overlays[0].Props["position"])
	}
	if len(s.ActiveAt(3).Overlays) != 2 {
		t.Error("elements touching at 3s should both be active")
	}

	edl := s.TimelineEDL(30)
	if !strings.Contains(edl, "* FROM CLIP NAME:  animation_ Step 2_ cables") {
		t.Errorf("EDL missing applied animation:\n%s", edl)
	}
}

func TestSession_EnhancementsAndExport(t *testing.T) {
	s, history := newTestSession(t, nil)
	ctx := context.Background()

	var perr *workflow.PreconditionError
	if _, err := s.AnalyzeEnhancements(ctx); !errors.As(err, &perr) {
		t.Fatalf("AnalyzeEnhancements() before transcription = %v, want PreconditionError", err)
	}

	transcribe(t, s)
	res, err := s.AnalyzeEnhancements(ctx)
	if err != nil {
		t.Fatalf("AnalyzeEnhancements() error = %v", err)
	}
	if len(res.Suggestions) != 3 || len(s.Enhancements().Items()) != 3 {
		t.Fatalf("suggestions = %d, items = %d", len(res.Suggestions), len(s.Enhancements().Items()))
	}
	if !history.hasAnalysis(project.KindEnhancements) {
		t.Error("enhancements were not persisted")
	}

	layout := s.Layout()
	if len(layout) != 4 || layout[0].Track != "visual" || layout[1].Track != "sfx" {
		t.Fatalf("layout tracks = %+v", layout)
	}
	if len(layout[1].Clips) != 1 || layout[1].Clips[0].LeftPct != 20 {
		t.Errorf("sfx placement = %+v", layout[1].Clips)
	}

	s.Enhancements().ApproveAll()
	batch, err := s.Enhancements().GenerateApproved(ctx)
	if err != nil || batch.Completed != 3 {
		t.Fatalf("GenerateApproved() = %+v, %v", batch, err)
	}

	edl := s.TimelineEDL(30)
	if !strings.Contains(edl, "TITLE: Desk setup") {
		t.Errorf("EDL title:\n%s", edl)
	}
	if !strings.Contains(edl, "002  AX       A     C        00:00:06:00 00:00:07:00") {
		t.Errorf("sfx should be the second event on the audio track:\n%s", edl)
	}

	sfx := s.Enhancements().Items()[1]
	if err := s.RemoveEnhancement(ctx, sfx.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveEnhancement(ctx, sfx.ID); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("second remove = %v, want ErrNotFound", err)
	}
	if err := s.RetimeEnhancement(ctx, s.Enhancements().Items()[0].ID, 1, 2); err != nil {
		t.Fatal(err)
	}
	edits := history.editLog()
	if len(edits) != 2 || edits[0] != "remove_enhancement" || edits[1] != "retime_enhancement" {
		t.Errorf("edits = %v", edits)
	}
}

func TestSession_TimelineDrag(t *testing.T) {
	s, history := newTestSession(t, nil)
	ctx := context.Background()
	transcribe(t, s)
	if _, err := s.AnalyzeEnhancements(ctx); err != nil {
		t.Fatal(err)
	}
	graphic := s.Enhancements().Items()[0]
	g := editor.Geometry{Left: 0, Width: 256}

	zone, err := s.Editor().PointerDown(graphic.ID, 12, g)
	if err != nil || zone != editor.ZoneMove {
		t.Fatalf("PointerDown() = %v, %v", zone, err)
	}
	if _, err := s.Editor().PointerMove(44); err != nil {
		t.Fatal(err)
	}
	r, err := s.PointerUp(ctx, 44)
	if err != nil {
		t.Fatalf("PointerUp() error = %v", err)
	}
	if r.Start != 3.75 || r.End != 6.75 {
		t.Errorf("dragged range = %+v, want [3.75, 6.75]", r)
	}
	if got, _ := s.Enhancements().Item(graphic.ID); got.StartTime != 3.75 || got.EndTime != 6.75 {
		t.Errorf("item after drag = [%v, %v]", got.StartTime, got.EndTime)
	}

	if _, ok := s.Click(44, g); ok {
		t.Error("click right after a drag should be swallowed")
	}
	active, ok := s.Click(128, g)
	if !ok || active.Time != 15 || s.Store().CurrentTime() != 15 {
		t.Errorf("Click(128) = %+v, %v", active, ok)
	}

	if edits := history.editLog(); len(edits) != 1 || edits[0] != "drag_enhancement" {
		t.Errorf("edits = %v", edits)
	}
}

func TestSession_ApplyEditAction(t *testing.T) {
	gw := &chatGateway{StubGateway: gateway.NewStubGateway(testLogger())}
	s, history := newTestSession(t, gw)
	ctx := context.Background()
	transcribe(t, s)

	gw.reply = "Add a whoosh.\n```json\n{\"type\":\"add_sfx\",\"description\":\"Whoosh\",\"timestamps\":[{\"start\":6,\"end\":7}]}\n```"
	reply, err := s.Chat().SendMessage(ctx, "make the first step pop")
	if err != nil {
		t.Fatal(err)
	}
	applied, err := s.ApplyEditAction(ctx, reply.ID)
	if err != nil {
		t.Fatalf("ApplyEditAction() error = %v", err)
	}
	if len(applied.Enhancements) != 1 || applied.Enhancements[0].Type != workflow.TypeSFX || applied.Enhancements[0].StartTime != 6 {
		t.Errorf("applied = %+v", applied)
	}
	if s.Enhancements().Snapshot().Status != workflow.StatusReviewing {
		t.Errorf("enhancement status = %v", s.Enhancements().Snapshot().Status)
	}

	gw.reply = "Fix the typo.\n```json\n{\"type\":\"caption\",\"timestamps\":[{\"start\":1,\"end\":2}],\"params\":{\"text\":\"Welcome back!\"}}\n```"
	reply, err = s.Chat().SendMessage(ctx, "fix the caption")
	if err != nil {
		t.Fatal(err)
	}
	applied, err = s.ApplyEditAction(ctx, reply.ID)
	if err != nil || len(applied.Captions) != 1 || applied.Captions[0] != 0 {
		t.Fatalf("caption action = %+v, %v", applied, err)
	}
	if c := s.ActiveAt(1).Caption; c == nil || c.Text != "Welcome back!" {
		t.Errorf("caption = %+v", c)
	}

	gw.reply = "Trim the pause.\n```json\n{\"type\":\"trim\",\"description\":\"Tighten\",\"timestamps\":[{\"start\":4.8,\"end\":6}]}\n```"
	reply, err = s.Chat().SendMessage(ctx, "tighten it")
	if err != nil {
		t.Fatal(err)
	}
	applied, err = s.ApplyEditAction(ctx, reply.ID)
	if err != nil || len(applied.Annotations) != 1 {
		t.Fatalf("trim action = %+v, %v", applied, err)
	}
	if a, ok := s.ActiveAt(5).Annotations[timeline.KindSuggestedEdit]; !ok || a.Type != "trim" {
		t.Errorf("suggested edit at 5s = %+v", a)
	}

	var perr *workflow.PreconditionError
	user := s.Chat().Messages()[0]
	if _, err := s.ApplyEditAction(ctx, user.ID); !errors.As(err, &perr) {
		t.Errorf("applying a user message = %v, want PreconditionError", err)
	}
	if _, err := s.ApplyEditAction(ctx, "missing"); !errors.Is(err, workflow.ErrNotFound) {
		t.Errorf("unknown message = %v, want ErrNotFound", err)
	}

	if edits := history.editLog(); len(edits) != 3 {
		t.Errorf("edits = %v", edits)
	}
}

func TestSession_ApplyEditAction_ClampsSpans(t *testing.T) {
	gw := &chatGateway{StubGateway: gateway.NewStubGateway(testLogger())}
	s, history := newTestSession(t, gw)
	ctx := context.Background()

	gw.reply = "Two whooshes.\n```json\n{\"type\":\"add_sfx\",\"description\":\"Whoosh\",\"timestamps\":[{\"start\":5,\"end\":6},{\"start\":40,\"end\":41}]}\n```"
	reply, err := s.Chat().SendMessage(ctx, "add sound")
	if err != nil {
		t.Fatal(err)
	}
	applied, err := s.ApplyEditAction(ctx, reply.ID)
	if err != nil {
		t.Fatalf("ApplyEditAction() error = %v", err)
	}
	if len(applied.Enhancements) != 2 {
		t.Fatalf("applied %d enhancements, want 2", len(applied.Enhancements))
	}
	late := applied.Enhancements[1]
	if math.Abs(late.StartTime-29.9) > 1e-9 || late.EndTime != 30 {
		t.Errorf("span past the end = [%v, %v], want [29.9, 30]", late.StartTime, late.EndTime)
	}
	if n := len(s.Enhancements().Items()); n != 2 {
		t.Errorf("items = %d, want 2", n)
	}
	if edits := history.editLog(); len(edits) != 1 || edits[0] != "apply_edit_action" {
		t.Errorf("edits = %v", edits)
	}
}

func TestSession_ApplyEditAction_InvalidLeavesStateUntouched(t *testing.T) {
	gw := &chatGateway{StubGateway: gateway.NewStubGateway(testLogger())}
	s, history := newTestSession(t, gw)
	ctx := context.Background()
	transcribe(t, s)

	gw.reply = "Fix it.\n```json\n{\"type\":\"caption\",\"timestamps\":[{\"start\":1,\"end\":2}]}\n```"
	reply, err := s.Chat().SendMessage(ctx, "fix the caption")
	if err != nil {
		t.Fatal(err)
	}
	var verr *workflow.ValidationError
	if _, err := s.ApplyEditAction(ctx, reply.ID); !errors.As(err, &verr) {
		t.Fatalf("ApplyEditAction() error = %v, want ValidationError", err)
	}
	if n := len(s.Store().Overrides()); n != 0 {
		t.Errorf("overrides = %d, want 0", n)
	}
	for _, e := range history.editLog() {
		if e == "apply_edit_action" {
			t.Errorf("a failed apply was recorded: %v", history.editLog())
		}
	}
}

func TestParseActionType(t *testing.T) {
	tests := []struct {
		in   string
		want workflow.EnhancementType
		ok   bool
	}{
		{"graphic", workflow.TypeGraphic, true},
		{"add_sfx", workflow.TypeSFX, true},
		{" ADD_Visual ", workflow.TypeVisual, true},
		{"trim", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseActionType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseActionType(%q) = %q, %v", tt.in, got, ok)
		}
	}
}
