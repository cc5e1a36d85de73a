package timeline

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// Store holds every temporal entity of one editing session. Readers pull
// what is active at the current playback time; nothing is pushed.
type Store struct {
	mu     sync.RWMutex
	logger *slog.Logger

	duration    float64
	currentTime float64

	segments  []TranscriptSegment
	disjoint  bool
	overrides map[int]string

	annotations map[AnnotationKind][]Annotation
	overlays    []Overlay
}

func NewStore(duration float64, logger *slog.Logger) *Store {
	if duration < 0 {
		duration = 0
	}
	return &Store{
		logger:      logger,
		duration:    duration,
		overrides:   make(map[int]string),
		annotations: make(map[AnnotationKind][]Annotation),
	}
}

func (s *Store) Duration() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duration
}

func (s *Store) CurrentTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTime
}

// SetDuration updates the media length and re-clamps the playhead.
func (s *Store) SetDuration(d float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d < 0 {
		d = 0
	}
	s.duration = d
	s.currentTime = clamp(s.currentTime, 0, d)
}

// Seek moves the playhead, clamped to [0, duration], and returns the
// resulting time.
func (s *Store) Seek(t float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentTime = clamp(t, 0, s.duration)
	return s.currentTime
}

// NormalizeSegments drops segments with end <= start and stable-sorts the rest
// by start time. Overlaps are kept.
func NormalizeSegments(segs []TranscriptSegment) ([]TranscriptSegment, int) {
	out := make([]TranscriptSegment, 0, len(segs))
	for _, seg := range segs {
		if seg.EndTime > seg.StartTime {
			out = append(out, seg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out, len(segs) - len(out)
}

// disjoint reports whether sorted segments at most touch at their edges.
func disjoint(segs []TranscriptSegment) bool {
	for i := 1; i < len(segs); i++ {
		if segs[i].StartTime < segs[i-1].EndTime {
			return false
		}
	}
	return true
}

// SetTranscript replaces the transcript. Caption overrides are keyed by
// segment index of the previous version and are discarded.
func (s *Store) SetTranscript(segs []TranscriptSegment) {
	normalized, dropped := NormalizeSegments(segs)

	s.mu.Lock()
	discarded := len(s.overrides)
	s.segments = normalized
	s.disjoint = disjoint(normalized)
	s.overrides = make(map[int]string)
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("transcript ingested",
			"segments", len(normalized),
			"dropped_invalid", dropped,
			"overrides_discarded", discarded,
		)
	}
}

func (s *Store) Segments() []TranscriptSegment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TranscriptSegment(nil), s.segments...)
}

// Overrides returns a copy of the caption text overrides.
func (s *Store) Overrides() map[int]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]string, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out
}

// SetCaptionOverride records a user edit of one segment's text without
// touching the segment itself.
func (s *Store) SetCaptionOverride(index int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.segments) {
		return fmt.Errorf("caption index %d out of range (%d segments)", index, len(s.segments))
	}
	s.overrides[index] = text
	return nil
}

// ClearCaptionOverride reverts one segment to its transcribed text.
func (s *Store) ClearCaptionOverride(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.segments) {
		return fmt.Errorf("caption index %d out of range (%d segments)", index, len(s.segments))
	}
	delete(s.overrides, index)
	return nil
}

// Transcript joins the effective caption texts with spaces.
func (s *Store) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []byte
	for i, seg := range s.segments {
		if i > 0 {
			out = append(out, ' ')
		}
		out = append(out, s.textAt(i, seg)...)
	}
	return string(out)
}

func (s *Store) textAt(i int, seg TranscriptSegment) string {
	if text, ok := s.overrides[i]; ok {
		return text
	}
	return seg.Text
}

// Caption is the segment active at a time with any user override applied.
type Caption struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	Edited    bool    `json:"edited"`
}

func (s *Store) CaptionAt(t float64) (Caption, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lookup := ActiveAt[TranscriptSegment]
	if s.disjoint {
		lookup = ActiveAtSorted[TranscriptSegment]
	}
	seg, i, ok := lookup(s.segments, t)
	if !ok {
		return Caption{}, false
	}
	_, edited := s.overrides[i]
	return Caption{
		Index:     i,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Text:      s.textAt(i, seg),
		Speaker:   seg.Speaker,
		Edited:    edited,
	}, true
}

// ReplaceAnnotations swaps all annotations of a kind for a new analysis
// result.
func (s *Store) ReplaceAnnotations(kind AnnotationKind, items []Annotation) {
	cp := make([]Annotation, len(items))
	for i, it := range items {
		it.Kind = kind
		cp[i] = it
	}
	s.mu.Lock()
	s.annotations[kind] = cp
	s.mu.Unlock()
}

// AppendAnnotations adds to the annotations of a kind.
func (s *Store) AppendAnnotations(kind AnnotationKind, items ...Annotation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		it.Kind = kind
		s.annotations[kind] = append(s.annotations[kind], it)
	}
}

func (s *Store) Annotations(kind AnnotationKind) []Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Annotation(nil), s.annotations[kind]...)
}

func (s *Store) AnnotationAt(kind AnnotationKind, t float64) (Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, _, ok := ActiveAt(s.annotations[kind], t)
	return a, ok
}

func (s *Store) SetOverlays(items []Overlay) {
	s.mu.Lock()
	s.overlays = append([]Overlay(nil), items...)
	s.mu.Unlock()
}

func (s *Store) Overlays() []Overlay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Overlay(nil), s.overlays...)
}

// Active is everything that should be on screen at one instant.
type Active struct {
	Time        float64                       `json:"time"`
	Percent     float64                       `json:"percent"`
	Caption     *Caption                      `json:"caption,omitempty"`
	Annotations map[AnnotationKind]Annotation `json:"annotations,omitempty"`
	Overlays    []Overlay                     `json:"overlays,omitempty"`
}

// ActiveAt collects the caption, the first annotation of each kind and every
// overlay active at t. A t outside [0, duration] yields an empty result, and
// a non-finite t an empty result at time 0.
func (s *Store) ActiveAt(t float64) Active {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return Active{}
	}
	d := s.Duration()
	out := Active{Time: t, Percent: Percent(t, d)}
	if t < 0 || (d > 0 && t > d) {
		return out
	}
	if c, ok := s.CaptionAt(t); ok {
		out.Caption = &c
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kind := range AnnotationKinds {
		if a, _, ok := ActiveAt(s.annotations[kind], t); ok {
			if out.Annotations == nil {
				out.Annotations = make(map[AnnotationKind]Annotation)
			}
			out.Annotations[kind] = a
		}
	}
	out.Overlays = AllActiveAt(s.overlays, t)
	return out
}
