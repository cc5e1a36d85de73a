// Package session ties one editing session together: the temporal store, the
// three workflows and the timeline editor over the enhancement clips. It
// persists analyses and user edits to the owning project when there is one.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/framecraft/studio/internal/editor"
	"github.com/framecraft/studio/internal/gateway"
	"github.com/framecraft/studio/internal/logging"
	"github.com/framecraft/studio/internal/presets"
	"github.com/framecraft/studio/internal/project"
	"github.com/framecraft/studio/internal/timeline"
	"github.com/framecraft/studio/internal/workflow"
)

// History is where analyses and edits of a project-backed session are kept.
// project.Service implements it.
type History interface {
	RecordAnalysis(ctx context.Context, projectID string, kind project.AnalysisKind, v any) error
	LatestAnalysis(ctx context.Context, projectID string, kind project.AnalysisKind, v any) (bool, error)
	RecordEdit(ctx context.Context, projectID, sessionID, action string, payload any) error
}

// Options describe the media a session edits.
type Options struct {
	ProjectID   string  `json:"projectId,omitempty"`
	Title       string  `json:"title,omitempty"`
	VideoPath   string  `json:"videoPath,omitempty"`
	VideoURL    string  `json:"videoUrl,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
}

type Session struct {
	ID        string
	CreatedAt time.Time

	opts    Options
	gw      gateway.Gateway
	history History
	presets presets.Store
	logger  *slog.Logger
	events  *broadcaster

	store        *timeline.Store
	animation    *workflow.Animation
	enhancements *workflow.Enhancements
	chat         *workflow.Chat
	editor       *editor.Editor

	mu              sync.Mutex
	transcribeEpoch uint64
	transcription   *gateway.Transcription

	unsubscribe []func()
}

func newSession(id string, opts Options, gw gateway.Gateway, history History, store presets.Store, logger *slog.Logger) *Session {
	logger = logging.WithSessionID(logger, id)
	if opts.ProjectID != "" {
		logger = logging.WithProjectID(logger, opts.ProjectID)
	}

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		opts:      opts,
		gw:        gw,
		history:   history,
		presets:   store,
		logger:    logger,
		events:    newBroadcaster(logger),
		store:     timeline.NewStore(opts.Duration, logger),
	}
	s.animation = workflow.NewAnimation(gw, s.store.Duration, logger)
	s.enhancements = workflow.NewEnhancements(gw, s.store.Duration, logger)
	s.chat = workflow.NewChat(gw, logger)
	s.editor = editor.New(s.enhancements, s.store.Duration, logger)
	s.chat.SetContext(workflow.ChatContext{Platform: opts.Platform, ContentType: opts.ContentType})

	s.unsubscribe = []func(){
		s.animation.Subscribe(func(snap workflow.AnimationSnapshot) { s.emit(EventAnimation, snap) }),
		s.enhancements.Subscribe(func(snap workflow.EnhancementSnapshot) { s.emit(EventEnhancements, snap) }),
		s.chat.Subscribe(func(snap workflow.ChatSnapshot) { s.emit(EventChat, snap) }),
	}
	return s
}

func (s *Session) emit(typ EventType, data any) {
	s.events.publish(Event{Type: typ, SessionID: s.ID, Data: data, At: time.Now()})
}

func (s *Session) emitTimeline() {
	s.emit(EventTimeline, s.TimelineView())
}

// Subscribe returns a channel of state changes and a function that stops the
// subscription.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

func (s *Session) Options() Options { return s.opts }

func (s *Session) Store() *timeline.Store { return s.store }

func (s *Session) Animation() *workflow.Animation { return s.animation }

func (s *Session) Enhancements() *workflow.Enhancements { return s.enhancements }

func (s *Session) Chat() *workflow.Chat { return s.chat }

func (s *Session) Editor() *editor.Editor { return s.editor }

// close supersedes anything in flight and ends every subscription.
func (s *Session) close() {
	for _, unsub := range s.unsubscribe {
		unsub()
	}
	s.mu.Lock()
	s.transcribeEpoch++
	s.mu.Unlock()
	s.animation.Reset()
	s.enhancements.Reset()
	s.chat.Clear()
	s.events.close(Event{Type: EventClosed, SessionID: s.ID, At: time.Now()})
}

func (s *Session) recordAnalysis(ctx context.Context, kind project.AnalysisKind, v any) {
	if s.history == nil || s.opts.ProjectID == "" {
		return
	}
	if err := s.history.RecordAnalysis(ctx, s.opts.ProjectID, kind, v); err != nil {
		s.logger.Warn("failed to persist analysis", "kind", string(kind), "error", err)
	}
}

func (s *Session) recordEdit(ctx context.Context, action string, payload any) {
	if s.history == nil || s.opts.ProjectID == "" {
		return
	}
	if err := s.history.RecordEdit(ctx, s.opts.ProjectID, s.ID, action, payload); err != nil {
		s.logger.Warn("failed to record edit", "action", action, "error", err)
	}
}

// Restore reloads the newest transcription and context timing of the
// project so a reopened session starts where the last one ended.
func (s *Session) Restore(ctx context.Context) error {
	if s.history == nil || s.opts.ProjectID == "" {
		return nil
	}
	var tr gateway.Transcription
	found, err := s.history.LatestAnalysis(ctx, s.opts.ProjectID, project.KindTranscription, &tr)
	if err != nil {
		return fmt.Errorf("restore transcription: %w", err)
	}
	if found {
		s.ingestTranscription(&tr)
	}
	var vc gateway.VideoContext
	found, err = s.history.LatestAnalysis(ctx, s.opts.ProjectID, project.KindVideoContext, &vc)
	if err != nil {
		return fmt.Errorf("restore video context: %w", err)
	}
	if found {
		s.ingestContext(&vc)
	}
	return nil
}

// mediaInput fills an empty input from the session's own media.
func (s *Session) mediaInput(in gateway.MediaInput) (gateway.MediaInput, error) {
	if in.Provided() > 0 {
		if in.Duration == 0 {
			in.Duration = s.store.Duration()
		}
		return in, nil
	}
	switch {
	case s.opts.VideoURL != "":
		in.VideoURL = s.opts.VideoURL
	case s.opts.VideoPath != "":
		b, err := os.ReadFile(s.opts.VideoPath)
		if err != nil {
			return in, fmt.Errorf("read session video: %w", err)
		}
		in.VideoBytes = b
		in.FileName = filepath.Base(s.opts.VideoPath)
	}
	in.Duration = s.store.Duration()
	return in, nil
}

// Transcribe runs transcription and replaces the session transcript. A newer
// Transcribe call supersedes this one.
func (s *Session) Transcribe(ctx context.Context, in gateway.MediaInput) (*gateway.Transcription, error) {
	in, err := s.mediaInput(in)
	if err != nil {
		return nil, err
	}
	if len(in.VideoBytes) == 0 && in.VideoURL == "" {
		return nil, &workflow.ValidationError{Field: "input", Message: "provide a video or a video URL to transcribe"}
	}
	if in.Provided() != 1 {
		return nil, &workflow.ValidationError{Field: "input", Message: "provide only one of video or video URL"}
	}

	s.mu.Lock()
	s.transcribeEpoch++
	epoch := s.transcribeEpoch
	s.mu.Unlock()

	s.logger.Info("transcription started", "input", in.Kind())
	tr, err := s.gw.Transcribe(ctx, in)

	s.mu.Lock()
	if s.transcribeEpoch != epoch {
		s.mu.Unlock()
		s.logger.Warn("discarding stale transcription", "epoch", epoch)
		return nil, workflow.ErrSuperseded
	}
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	s.ingestTranscription(tr)
	s.recordAnalysis(ctx, project.KindTranscription, tr)
	s.emitTimeline()
	return tr, nil
}

func (s *Session) ingestTranscription(tr *gateway.Transcription) {
	s.mu.Lock()
	s.transcription = tr
	s.mu.Unlock()
	s.store.SetTranscript(tr.Segments)
	if s.store.Duration() == 0 {
		var end float64
		for _, seg := range tr.Segments {
			end = max(end, seg.EndTime)
		}
		s.store.SetDuration(end)
	}
}

// Transcription returns the last ingested transcription, if any.
func (s *Session) Transcription() *gateway.Transcription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcription
}

// Seek moves the playhead and returns what is active at the new time.
func (s *Session) Seek(t float64) timeline.Active {
	return s.store.ActiveAt(s.store.Seek(t))
}

func (s *Session) ActiveAt(t float64) timeline.Active {
	return s.store.ActiveAt(t)
}

// SetCaption overrides the text of one transcript segment.
func (s *Session) SetCaption(ctx context.Context, index int, text string) error {
	if err := s.store.SetCaptionOverride(index, text); err != nil {
		return &workflow.ValidationError{Field: "index", Message: err.Error()}
	}
	s.recordEdit(ctx, "set_caption", map[string]any{"index": index, "text": text})
	s.emitTimeline()
	return nil
}

// ResetCaption drops the user's edit of one caption.
func (s *Session) ResetCaption(ctx context.Context, index int) error {
	if err := s.store.ClearCaptionOverride(index); err != nil {
		return &workflow.ValidationError{Field: "index", Message: err.Error()}
	}
	s.recordEdit(ctx, "reset_caption", map[string]any{"index": index})
	s.emitTimeline()
	return nil
}

// AnalyzeContext runs context analysis through the animation workflow and
// ingests its timing annotations.
func (s *Session) AnalyzeContext(ctx context.Context, in gateway.MediaInput) (*gateway.VideoContext, error) {
	if in.Provided() == 0 {
		if tr := s.store.Transcript(); tr != "" {
			in.Transcript = tr
		} else {
			var err error
			if in, err = s.mediaInput(in); err != nil {
				return nil, err
			}
		}
	}
	vc, err := s.animation.AnalyzeContext(ctx, in)
	if err != nil {
		return nil, err
	}
	s.ingestContext(vc)
	s.recordAnalysis(ctx, project.KindVideoContext, vc)
	s.emitTimeline()
	return vc, nil
}

func (s *Session) ingestContext(vc *gateway.VideoContext) {
	ingest := func(kind timeline.AnnotationKind, items []timeline.Annotation) {
		out := make([]timeline.Annotation, len(items))
		for i, a := range items {
			a.Kind = kind
			out[i] = a
		}
		s.store.ReplaceAnnotations(kind, out)
	}
	ingest(timeline.KindPause, vc.Timing.Pauses)
	ingest(timeline.KindKeyMoment, vc.Timing.KeyMoments)
	ingest(timeline.KindSceneChange, vc.Timing.SceneChanges)
	ingest(timeline.KindSuggestedEdit, vc.Recommendations.SuggestedEdits)

	c := s.chat.Snapshot().Context
	c.Analysis = vc.Summary()
	if c.Platform == "" {
		c.Platform = vc.Content.Platform
	}
	s.chat.SetContext(c)
}

// GenerateStoryboard resolves style against the built-in styles and saved
// animation presets unless explicit settings are given.
func (s *Session) GenerateStoryboard(ctx context.Context, style workflow.StyleChoice) (*gateway.Storyboard, error) {
	if style.Settings == nil && style.Name != "" {
		settings, err := presets.ResolveStyle(ctx, s.presets, style.Name)
		if errors.Is(err, presets.ErrNotFound) {
			return nil, &workflow.ValidationError{Field: "style", Message: fmt.Sprintf("unknown style %q", style.Name)}
		}
		if err != nil {
			return nil, fmt.Errorf("resolve style: %w", err)
		}
		style.Settings = settings
	}
	sb, err := s.animation.GenerateStoryboard(ctx, style)
	if err != nil {
		return nil, err
	}
	s.recordAnalysis(ctx, project.KindStoryboard, sb)
	return sb, nil
}

// ApplyAnimations completes the animation workflow and places the approved
// elements on the timeline as overlays.
func (s *Session) ApplyAnimations(ctx context.Context) ([]workflow.AppliedElement, error) {
	applied, err := s.animation.Apply()
	if err != nil {
		return nil, err
	}
	overlays := make([]timeline.Overlay, 0, len(applied))
	for _, el := range applied {
		props := make(map[string]any, len(el.Style)+1)
		for k, v := range el.Style {
			props[k] = v
		}
		if el.Position != nil {
			props["position"] = *el.Position
		}
		overlays = append(overlays, timeline.Overlay{
			ID:        el.ID,
			Kind:      el.Kind,
			StartTime: el.StartTime,
			EndTime:   el.EndTime,
			Content:   el.Content,
			Animation: el.Animation,
			Props:     props,
		})
	}
	s.store.SetOverlays(overlays)
	s.recordEdit(ctx, "apply_animations", map[string]any{"elements": len(applied)})
	s.emitTimeline()
	return applied, nil
}

// AnalyzeEnhancements asks for enhancement suggestions over the current
// transcript and, when available, the video context.
func (s *Session) AnalyzeEnhancements(ctx context.Context) (*gateway.EnhancementAnalysis, error) {
	transcript := s.store.Transcript()
	if transcript == "" {
		return nil, &workflow.PreconditionError{Op: "analyze enhancements", Requirement: "the video has not been transcribed"}
	}
	res, err := s.enhancements.Analyze(ctx, gateway.EnhancementRequest{
		Transcript: transcript,
		Segments:   s.store.Segments(),
		Context:    s.animation.VideoContext(),
		Duration:   s.store.Duration(),
	})
	if err != nil {
		return nil, err
	}
	s.pruneEditor()
	s.recordAnalysis(ctx, project.KindEnhancements, res)
	return res, nil
}

// pruneEditor drops a selection that no longer refers to an item.
func (s *Session) pruneEditor() {
	if id, ok := s.editor.Selected(); ok {
		if _, exists := s.enhancements.Item(id); !exists {
			s.editor.Forget(id)
		}
	}
}

func (s *Session) RemoveEnhancement(ctx context.Context, id string) error {
	if err := s.enhancements.Remove(id); err != nil {
		return err
	}
	s.editor.Forget(id)
	s.recordEdit(ctx, "remove_enhancement", map[string]any{"id": id})
	return nil
}

func (s *Session) RetimeEnhancement(ctx context.Context, id string, start, end float64) error {
	if err := s.enhancements.Retime(id, start, end); err != nil {
		return err
	}
	s.recordEdit(ctx, "retime_enhancement", map[string]any{"id": id, "start": start, "end": end})
	return nil
}

func (s *Session) RepositionEnhancement(ctx context.Context, id string, pos gateway.Position) error {
	if err := s.enhancements.Reposition(id, pos); err != nil {
		return err
	}
	s.recordEdit(ctx, "reposition_enhancement", map[string]any{"id": id, "position": pos})
	return nil
}

func (s *Session) ClearChat(ctx context.Context) {
	s.chat.Clear()
	s.recordEdit(ctx, "clear_chat", nil)
}

// PointerUp ends a timeline drag and records the final range.
func (s *Session) PointerUp(ctx context.Context, x float64) (timeline.Range, error) {
	drag, dragging := s.editor.Dragging()
	r, err := s.editor.PointerUp(x)
	if err != nil {
		return r, err
	}
	if dragging && r != drag.Original {
		s.recordEdit(ctx, "drag_enhancement", map[string]any{"id": drag.ClipID, "mode": drag.Mode, "start": r.Start, "end": r.End})
	}
	return r, nil
}

// Click seeks to the clicked time unless the editor swallows the click.
func (s *Session) Click(x float64, g editor.Geometry) (timeline.Active, bool) {
	t, ok := s.editor.Click(x, g)
	if !ok {
		return timeline.Active{}, false
	}
	return s.Seek(t), true
}

// Layout arranges the enhancement clips into lanes per track.
func (s *Session) Layout() []editor.TrackLayout {
	order := make([]string, len(workflow.EnhancementTypes))
	for i, t := range workflow.EnhancementTypes {
		order[i] = string(t)
	}
	return editor.Layout(s.enhancements.Clips(), s.store.Duration(), order...)
}

// TimelineView is the pull-side state of the temporal store.
type TimelineView struct {
	Duration    float64                                           `json:"duration"`
	CurrentTime float64                                           `json:"currentTime"`
	Segments    []timeline.TranscriptSegment                      `json:"segments"`
	Overrides   map[int]string                                    `json:"overrides,omitempty"`
	Annotations map[timeline.AnnotationKind][]timeline.Annotation `json:"annotations"`
	Overlays    []timeline.Overlay                                `json:"overlays,omitempty"`
	Active      timeline.Active                                   `json:"active"`
}

func (s *Session) TimelineView() TimelineView {
	annotations := make(map[timeline.AnnotationKind][]timeline.Annotation, len(timeline.AnnotationKinds))
	for _, kind := range timeline.AnnotationKinds {
		annotations[kind] = s.store.Annotations(kind)
	}
	now := s.store.CurrentTime()
	return TimelineView{
		Duration:    s.store.Duration(),
		CurrentTime: now,
		Segments:    s.store.Segments(),
		Overrides:   s.store.Overrides(),
		Annotations: annotations,
		Overlays:    s.store.Overlays(),
		Active:      s.store.ActiveAt(now),
	}
}

type EditorView struct {
	Selected string               `json:"selected,omitempty"`
	Drag     *editor.DragState    `json:"drag,omitempty"`
	Layout   []editor.TrackLayout `json:"layout"`
}

type Snapshot struct {
	ID           string                       `json:"id"`
	ProjectID    string                       `json:"projectId,omitempty"`
	Title        string                       `json:"title,omitempty"`
	CreatedAt    time.Time                    `json:"createdAt"`
	Timeline     TimelineView                 `json:"timeline"`
	Animation    workflow.AnimationSnapshot   `json:"animation"`
	Enhancements workflow.EnhancementSnapshot `json:"enhancements"`
	Chat         workflow.ChatSnapshot        `json:"chat"`
	Editor       EditorView                   `json:"editor"`
}

func (s *Session) Snapshot() Snapshot {
	ev := EditorView{Layout: s.Layout()}
	ev.Selected, _ = s.editor.Selected()
	if d, ok := s.editor.Dragging(); ok {
		ev.Drag = &d
	}
	return Snapshot{
		ID:           s.ID,
		ProjectID:    s.opts.ProjectID,
		Title:        s.opts.Title,
		CreatedAt:    s.CreatedAt,
		Timeline:     s.TimelineView(),
		Animation:    s.animation.Snapshot(),
		Enhancements: s.enhancements.Snapshot(),
		Chat:         s.chat.Snapshot(),
		Editor:       ev,
	}
}
