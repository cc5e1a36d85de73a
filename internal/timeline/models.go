package timeline

import "sort"

// PointSpan is how long an annotation without an end time stays active.
const PointSpan = 1.5

// Ranged is anything anchored to a [start, end] window of the media.
type Ranged interface {
	Bounds() (start, end float64)
}

type TranscriptSegment struct {
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
}

func (s TranscriptSegment) Bounds() (float64, float64) {
	return s.StartTime, s.EndTime
}

type AnnotationKind string

const (
	KindPause         AnnotationKind = "pause"
	KindKeyMoment     AnnotationKind = "key_moment"
	KindSceneChange   AnnotationKind = "scene_change"
	KindSuggestedEdit AnnotationKind = "suggested_edit"
)

// AnnotationKinds lists every kind in track order.
var AnnotationKinds = []AnnotationKind{KindPause, KindKeyMoment, KindSceneChange, KindSuggestedEdit}

// Annotation is a read-only marker produced by one analysis call.
type Annotation struct {
	Kind        AnnotationKind `json:"kind"`
	StartTime   float64        `json:"startTime"`
	EndTime     *float64       `json:"endTime,omitempty"`
	Type        string         `json:"type,omitempty"`
	Importance  string         `json:"importance,omitempty"`
	Description string         `json:"description,omitempty"`
}

func (a Annotation) Bounds() (float64, float64) {
	if a.EndTime == nil || *a.EndTime <= a.StartTime {
		return a.StartTime, a.StartTime + PointSpan
	}
	return a.StartTime, *a.EndTime
}

// Overlay is an applied animation element placed on the timeline.
type Overlay struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	StartTime float64        `json:"startTime"`
	EndTime   float64        `json:"endTime"`
	Content   string         `json:"content,omitempty"`
	Animation string         `json:"animation,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

func (o Overlay) Bounds() (float64, float64) {
	return o.StartTime, o.EndTime
}

// ActiveAt returns the first item, in slice order, whose closed range
// contains t.
func ActiveAt[T Ranged](items []T, t float64) (T, int, bool) {
	for i, it := range items {
		start, end := it.Bounds()
		if t >= start && t <= end {
			return it, i, true
		}
	}
	var zero T
	return zero, -1, false
}

// ActiveAtSorted is ActiveAt for items sorted by start time that overlap at
// most at shared edges. It binary-searches for the last item starting at or
// before t; on a shared edge the earlier item wins, as with ActiveAt.
func ActiveAtSorted[T Ranged](items []T, t float64) (T, int, bool) {
	n := sort.Search(len(items), func(i int) bool {
		start, _ := items[i].Bounds()
		return start > t
	})
	for i := max(n-2, 0); i < n; i++ {
		start, end := items[i].Bounds()
		if t >= start && t <= end {
			return items[i], i, true
		}
	}
	var zero T
	return zero, -1, false
}

// AllActiveAt returns every item whose range contains t, in slice order.
func AllActiveAt[T Ranged](items []T, t float64) []T {
	var out []T
	for _, it := range items {
		start, end := it.Bounds()
		if t >= start && t <= end {
			out = append(out, it)
		}
	}
	return out
}
