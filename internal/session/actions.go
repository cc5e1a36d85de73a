package session

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/framecraft/studio/internal/export"
	"github.com/framecraft/studio/internal/stream"
	"github.com/framecraft/studio/internal/timeline"
	"github.com/framecraft/studio/internal/workflow"
)

// AppliedAction is what applying a chat edit action changed.
type AppliedAction struct {
	Enhancements []workflow.Enhancement `json:"enhancements,omitempty"`
	Annotations  []timeline.Annotation  `json:"annotations,omitempty"`
	Captions     []int                  `json:"captions,omitempty"`
}

type captionEdit struct {
	index int
	text  string
}

// clampSpan fits a proposed span inside [0, duration], giving point spans
// PointSpan of length and keeping at least MinSpan between the edges. A
// duration <= 0 only clamps the start at zero.
func clampSpan(span stream.TimeSpan, duration float64) (float64, float64) {
	start, end := math.Max(span.Start, 0), span.End
	if end <= start {
		end = start + timeline.PointSpan
	}
	if duration > 0 {
		start = math.Min(start, math.Max(duration-timeline.MinSpan, 0))
		end = math.Min(math.Max(end, start+timeline.MinSpan), duration)
	}
	return start, end
}

// enhancementTypeOf maps action types such as "graphic" or "add_sfx" onto
// an enhancement type.
func enhancementTypeOf(a stream.EditAction) (workflow.EnhancementType, bool) {
	if t, ok := ParseActionType(a.Type); ok {
		return t, true
	}
	if raw, ok := a.Params["enhancementType"].(string); ok {
		return workflow.ParseEnhancementType(raw)
	}
	return "", false
}

func ParseActionType(s string) (workflow.EnhancementType, bool) {
	return workflow.ParseEnhancementType(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "add_"))
}

// ApplyEditAction applies the edit actions carried by an assistant message.
// Enhancement actions become suggested enhancements, caption actions
// override the caption under each timestamp, and anything else is placed on
// the timeline as a suggested-edit annotation.
func (s *Session) ApplyEditAction(ctx context.Context, messageID string) (AppliedAction, error) {
	var out AppliedAction
	msg, ok := s.chat.Message(messageID)
	if !ok {
		return out, fmt.Errorf("chat message %q: %w", messageID, workflow.ErrNotFound)
	}
	if msg.Role != workflow.RoleAssistant || msg.Status != workflow.MessageComplete || len(msg.EditActions) == 0 {
		return out, &workflow.PreconditionError{Op: "apply edit action", Requirement: "the message carries no edit action"}
	}

	// Every action is resolved and validated before anything is changed.
	var (
		drafts      []workflow.Draft
		captions    []captionEdit
		annotations []timeline.Annotation
	)
	duration := s.store.Duration()
	for _, action := range msg.EditActions {
		spans := action.Timestamps
		if len(spans) == 0 {
			t := s.store.CurrentTime()
			spans = []stream.TimeSpan{{Start: t, End: t}}
		}

		if typ, ok := enhancementTypeOf(action); ok {
			for _, span := range spans {
				start, end := clampSpan(span, duration)
				drafts = append(drafts, workflow.Draft{Type: typ, Start: start, End: end, Description: action.Description})
			}
			continue
		}

		if strings.EqualFold(action.Type, "caption") {
			text, _ := action.Params["text"].(string)
			if text == "" {
				return out, &workflow.ValidationError{Field: "params.text", Message: "a caption action needs text"}
			}
			for _, span := range spans {
				if c, ok := s.store.CaptionAt(span.Start); ok {
					captions = append(captions, captionEdit{index: c.Index, text: text})
				}
			}
			continue
		}

		for _, span := range spans {
			a := timeline.Annotation{
				Kind:        timeline.KindSuggestedEdit,
				StartTime:   span.Start,
				Type:        action.Type,
				Description: action.Description,
			}
			if span.End > span.Start {
				end := span.End
				a.EndTime = &end
			}
			annotations = append(annotations, a)
		}
	}

	added, err := s.enhancements.AddAll(drafts)
	if err != nil {
		return out, err
	}
	out.Enhancements = added
	for _, c := range captions {
		if err := s.store.SetCaptionOverride(c.index, c.text); err != nil {
			s.logger.Warn("caption edit skipped", "index", c.index, "error", err)
			continue
		}
		out.Captions = append(out.Captions, c.index)
	}
	if len(annotations) > 0 {
		s.store.AppendAnnotations(timeline.KindSuggestedEdit, annotations...)
		out.Annotations = annotations
	}

	s.recordEdit(ctx, "apply_edit_action", map[string]any{"message_id": messageID, "actions": msg.EditActions})
	if len(out.Annotations) > 0 || len(out.Captions) > 0 {
		s.emitTimeline()
	}
	return out, nil
}

// CaptionsVTT renders the transcript with caption edits applied.
func (s *Session) CaptionsVTT() string {
	return export.GenerateVTT(s.store.Segments(), s.store.Overrides())
}

// TimelineEDL lists ready enhancements, applied animations and key moments
// as EDL events in time order.
func (s *Session) TimelineEDL(fps float64) string {
	source := s.opts.VideoPath
	if source == "" {
		source = s.opts.VideoURL
	}

	var events []export.Event
	for _, e := range s.enhancements.Items() {
		if e.Status != workflow.ItemReady {
			continue
		}
		ev := export.Event{
			Name:   fmt.Sprintf("%s: %s", e.Type, e.Description),
			Source: source,
			Track:  export.TrackVideo,
			Start:  e.StartTime,
			End:    e.EndTime,
		}
		if e.Type == workflow.TypeSFX {
			ev.Track = export.TrackAudio
		}
		if e.Content != nil {
			ev.Note = e.Content.URL
		}
		events = append(events, ev)
	}
	for _, o := range s.store.Overlays() {
		events = append(events, export.Event{
			Name:   fmt.Sprintf("animation: %s", o.Content),
			Source: source,
			Start:  o.StartTime,
			End:    o.EndTime,
			Note:   o.Animation,
		})
	}
	for _, a := range s.store.Annotations(timeline.KindKeyMoment) {
		start, end := a.Bounds()
		events = append(events, export.Event{
			Name:   "key moment: " + a.Description,
			Source: source,
			Start:  start,
			End:    end,
			Note:   a.Importance,
		})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start < events[j].Start })
	title := s.opts.Title
	if title == "" {
		title = "Session " + s.ID
	}
	return export.GenerateEDL(events, title, fps)
}
