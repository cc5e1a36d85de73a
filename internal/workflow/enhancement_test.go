package workflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/timeline"
)

func newTestEnhancements(gw *fakeGateway) *Enhancements {
	return NewEnhancements(gw, func() float64 { return 90 }, testLogger())
}

// addApproved adds and approves one item per description.
func addApproved(t *testing.T, w *Enhancements, typ EnhancementType, descs ...string) []string {
	t.Helper()
	var ids []string
	for i, d := range descs {
		start := float64(i * 10)
		e, err := w.Add(typ, start, start+2, d)
		if err != nil {
			t.Fatalf("Add(%q) error = %v", d, err)
		}
		if err := w.Approve(e.ID); err != nil {
			t.Fatalf("Approve(%q) error = %v", d, err)
		}
		ids = append(ids, e.ID)
	}
	return ids
}

func TestEnhancements_PartialFailureKeepsGoing(t *testing.T) {
	gw := &fakeGateway{}
	gw.image = func(ctx context.Context, req gateway.ImageRequest) (*gateway.ImageResult, error) {
		if req.Prompt == "second" {
			return nil, &gateway.RemoteError{Op: gateway.OpGenerateImage, StatusCode: http.StatusInternalServerError}
		}
		return &gateway.ImageResult{ImageURL: "https://cdn/" + req.Prompt + ".png", Prompt: req.Prompt}, nil
	}
	w := newTestEnhancements(gw)
	ids := addApproved(t, w, TypeVisual, "first", "second", "third")

	var progress []int
	w.Subscribe(func(s EnhancementSnapshot) { progress = append(progress, s.Progress) })

	res, err := w.GenerateApproved(context.Background())
	if err != nil {
		t.Fatalf("GenerateApproved() error = %v", err)
	}
	if got, want := res.Summary(), "Generated 2 of 3 enhancements"; got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
	if len(res.Failed) != 1 || res.Failed[0] != ids[1] {
		t.Errorf("Failed = %v, want [%s]", res.Failed, ids[1])
	}

	wantStatus := []ItemStatus{ItemReady, ItemError, ItemReady}
	for i, id := range ids {
		e, _ := w.Item(id)
		if e.Status != wantStatus[i] {
			t.Errorf("item %d status = %s, want %s", i, e.Status, wantStatus[i])
		}
	}
	first, _ := w.Item(ids[0])
	if first.Content == nil || first.Content.Type != "image" || first.Content.URL != "https://cdn/first.png" {
		t.Errorf("first content = %+v", first.Content)
	}
	second, _ := w.Item(ids[1])
	if second.Content != nil || second.Error == "" {
		t.Errorf("failed item = %+v", second)
	}

	snap := w.Snapshot()
	if snap.Status != StatusComplete || snap.Progress != 100 || snap.Result == nil {
		t.Errorf("snapshot = %+v", snap)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if progress[0] != 50 || progress[len(progress)-1] != 100 {
		t.Errorf("progress = %v", progress)
	}

	// A failed item can be retried on its own.
	gw.image = nil
	e, err := w.Regenerate(context.Background(), ids[1])
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if e.Status != ItemReady || e.Content == nil || e.Error != "" {
		t.Errorf("regenerated = %+v", e)
	}
}

func TestEnhancements_SFXUsesAudioGeneration(t *testing.T) {
	var got gateway.SFXRequest
	gw := &fakeGateway{}
	gw.sfx = func(ctx context.Context, req gateway.SFXRequest) (*gateway.SFXResult, error) {
		got = req
		return &gateway.SFXResult{AudioURL: "https://cdn/whoosh.mp3", Prompt: req.Prompt, Duration: req.Duration}, nil
	}
	w := newTestEnhancements(gw)
	e, err := w.Add(TypeSFX, 20, 20.2, "whoosh")
	if err != nil {
		t.Fatal(err)
	}
	w.Approve(e.ID)

	if _, err := w.GenerateApproved(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gw.callCount("image") != 0 || gw.callCount("sfx") != 1 {
		t.Fatalf("calls = %v", gw.calls)
	}
	if got.Duration != gateway.MinSFXDuration || got.Prompt != "whoosh" {
		t.Errorf("sfx request = %+v", got)
	}
	e, _ = w.Item(e.ID)
	if e.Content == nil || e.Content.Type != "audio" {
		t.Errorf("content = %+v", e.Content)
	}
}

func TestEnhancements_AnalyzeNormalizesSuggestions(t *testing.T) {
	gw := &fakeGateway{}
	gw.enhancements = func(ctx context.Context, req gateway.EnhancementRequest) (*gateway.EnhancementAnalysis, error) {
		return &gateway.EnhancementAnalysis{
			Suggestions: []gateway.EnhancementSuggestion{
				{Type: "Visual", StartTime: -2, EndTime: 3, Confidence: 1.7},
				{Type: "music", StartTime: 5, EndTime: 8},
				{Type: "graphic", StartTime: 85, EndTime: 95},
				{Type: "sfx", StartTime: 95, EndTime: 99},
				{Type: "animation", StartTime: 40, EndTime: 40},
			},
			VideoStyle: "tutorial",
		}, nil
	}
	w := newTestEnhancements(gw)

	if _, err := w.Analyze(context.Background(), gateway.EnhancementRequest{}); err == nil {
		t.Fatal("empty transcript should be rejected")
	}
	if gw.callCount("enhancements") != 0 {
		t.Fatal("no remote call expected for invalid input")
	}

	if _, err := w.Analyze(context.Background(), gateway.EnhancementRequest{Transcript: "hello"}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	items := w.Items()
	if len(items) != 2 {
		t.Fatalf("items = %+v, want 2", items)
	}
	if items[0].Type != TypeVisual || items[0].StartTime != 0 || items[0].Confidence != 1 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].EndTime != 90 || items[1].Duration != 5 {
		t.Errorf("items[1] = %+v", items[1])
	}
	for _, e := range items {
		if e.Status != ItemSuggested || e.ID == "" {
			t.Errorf("item = %+v", e)
		}
	}
	snap := w.Snapshot()
	if snap.Status != StatusReviewing || snap.Progress != 50 || snap.VideoStyle != "tutorial" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEnhancements_ItemTransitions(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})

	var perr *PreconditionError
	if _, err := w.GenerateApproved(context.Background()); !errors.As(err, &perr) {
		t.Fatalf("GenerateApproved() with nothing approved = %v", err)
	}

	a, _ := w.Add(TypeGraphic, 1, 2, "a")
	b, _ := w.Add(TypeGraphic, 3, 4, "b")
	if n := w.ApproveAll(); n != 2 {
		t.Errorf("ApproveAll() = %d, want 2", n)
	}
	if err := w.Reject(b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := w.GenerateApproved(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Approving a ready item keeps it ready.
	if err := w.Approve(a.ID); err != nil {
		t.Fatal(err)
	}
	if e, _ := w.Item(a.ID); e.Status != ItemReady {
		t.Errorf("status = %s, want ready", e.Status)
	}
	if e, _ := w.Item(b.ID); e.Status != ItemRejected || e.Content != nil {
		t.Errorf("rejected item = %+v", e)
	}
	if _, err := w.Regenerate(context.Background(), b.ID); !errors.As(err, &perr) {
		t.Errorf("Regenerate(rejected) = %v, want PreconditionError", err)
	}

	if err := w.Approve("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Approve(missing) = %v, want ErrNotFound", err)
	}
	if len(w.Clips()) != 1 {
		t.Errorf("Clips() = %v, want only the non-rejected item", w.Clips())
	}
}

func TestEnhancements_RetimeAndReposition(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})
	e, _ := w.Add(TypeVisual, 10, 12, "x")

	var verr *ValidationError
	for _, r := range [][2]float64{{-1, 2}, {5, 5}, {6, 3}, {80, 91}} {
		if err := w.Retime(e.ID, r[0], r[1]); !errors.As(err, &verr) {
			t.Errorf("Retime(%v) = %v, want ValidationError", r, err)
		}
	}

	if err := w.SetRange(e.ID, timeline.Range{Start: 30, End: 34.5}); err != nil {
		t.Fatal(err)
	}
	got, _ := w.Item(e.ID)
	if got.StartTime != 30 || got.EndTime != 34.5 || got.Duration != 4.5 {
		t.Errorf("after SetRange = %+v", got)
	}
	clip, ok := w.Clip(e.ID)
	if !ok || clip.Track != "visual" || clip.Start != 30 {
		t.Errorf("Clip() = %+v, %v", clip, ok)
	}

	if err := w.Reposition(e.ID, gateway.Position{X: 1.5}); !errors.As(err, &verr) {
		t.Errorf("Reposition(out of frame) = %v", err)
	}
	if err := w.Reposition(e.ID, gateway.Position{X: 0.25, Y: 0.75}); err != nil {
		t.Fatal(err)
	}
	got, _ = w.Item(e.ID)
	if got.Position == nil || got.Position.Scale != 1 {
		t.Errorf("position = %+v", got.Position)
	}
}

func TestEnhancements_RemoveDuringBatch(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})
	var ids []string
	gw := w.gw.(*fakeGateway)
	gw.image = func(ctx context.Context, req gateway.ImageRequest) (*gateway.ImageResult, error) {
		if req.Prompt == "one" {
			if err := w.Remove(ids[1]); err != nil {
				t.Errorf("Remove() error = %v", err)
			}
		}
		return &gateway.ImageResult{ImageURL: "https://cdn/x.png", Prompt: req.Prompt}, nil
	}
	ids = addApproved(t, w, TypeVisual, "one", "two", "three")

	res, err := w.GenerateApproved(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempted != 2 || res.Completed != 2 || len(res.Failed) != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != ids[1] {
		t.Errorf("skipped = %v, want [%s]", res.Skipped, ids[1])
	}
	if got := res.Summary(); got != "Generated 2 of 2 enhancements" {
		t.Errorf("Summary() = %q", got)
	}
	if gw.callCount("image") != 2 {
		t.Errorf("image calls = %d, want 2", gw.callCount("image"))
	}
	if _, ok := w.Item(ids[1]); ok {
		t.Error("removed item came back")
	}
}

func TestEnhancements_ResetSupersedesBatch(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})
	gw := w.gw.(*fakeGateway)
	gw.image = func(ctx context.Context, req gateway.ImageRequest) (*gateway.ImageResult, error) {
		w.Reset()
		return &gateway.ImageResult{ImageURL: "https://cdn/x.png", Prompt: req.Prompt}, nil
	}
	addApproved(t, w, TypeVisual, "one", "two")

	if _, err := w.GenerateApproved(context.Background()); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("error = %v, want ErrSuperseded", err)
	}
	snap := w.Snapshot()
	if snap.Status != StatusIdle || len(snap.Items) != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
	if gw.callCount("image") != 1 {
		t.Errorf("image calls = %d, want 1", gw.callCount("image"))
	}
}

func TestEnhancements_ConcurrentMutationsDeliverLatestSnapshot(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})
	var ids []string
	for i := 0; i < 8; i++ {
		start := float64(i * 10)
		e, err := w.Add(TypeVisual, start, start+2, "item")
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
		ids = append(ids, e.ID)
	}

	var mu sync.Mutex
	var last EnhancementSnapshot
	var delivered int
	w.Subscribe(func(s EnhancementSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Seq <= last.Seq && delivered > 0 {
			t.Errorf("snapshot seq %d delivered after %d", s.Seq, last.Seq)
		}
		last = s
		delivered++
	})

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if j%2 == 0 {
					_ = w.Approve(id)
				} else {
					_ = w.Reject(id)
				}
			}
		}(id)
	}
	wg.Wait()

	want := w.Snapshot()
	mu.Lock()
	defer mu.Unlock()
	if last.Seq != want.Seq {
		t.Fatalf("last delivered seq = %d, Snapshot().Seq = %d", last.Seq, want.Seq)
	}
	for i := range want.Items {
		if last.Items[i].Status != want.Items[i].Status {
			t.Fatalf("item %d: delivered status %s, current %s", i, last.Items[i].Status, want.Items[i].Status)
		}
	}
}

func TestEnhancements_AddAllIsAtomic(t *testing.T) {
	w := newTestEnhancements(&fakeGateway{})
	var published int
	w.Subscribe(func(EnhancementSnapshot) { published++ })

	_, err := w.AddAll([]Draft{
		{Type: TypeSFX, Start: 5, End: 6, Description: "in range"},
		{Type: TypeSFX, Start: 95, End: 96, Description: "past the end"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("AddAll() error = %v, want ValidationError", err)
	}
	if n := len(w.Items()); n != 0 || published != 0 {
		t.Fatalf("items = %d, published = %d after a rejected batch", n, published)
	}

	added, err := w.AddAll([]Draft{
		{Type: TypeSFX, Start: 5, End: 6, Description: "a"},
		{Type: TypeVisual, Start: 10, End: 12, Description: "b"},
	})
	if err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if len(added) != 2 || len(w.Items()) != 2 || published != 1 {
		t.Fatalf("added = %d, items = %d, published = %d", len(added), len(w.Items()), published)
	}
	if w.Snapshot().Status != StatusReviewing {
		t.Errorf("status = %v, want reviewing", w.Snapshot().Status)
	}
}
