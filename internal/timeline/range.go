// Package timeline holds the time-ranged annotations of one editing session
// and the math that keeps them consistent with the playhead and the media
// duration.
package timeline

import "math"

// MinSpan is the shortest range a resize gesture may produce, in seconds.
const MinSpan = 0.1

// Range is a closed [Start, End] interval in seconds.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Span returns End - Start.
func (r Range) Span() float64 {
	return r.End - r.Start
}

// Contains reports whether t lies inside the closed interval.
func (r Range) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// Valid reports whether the range has positive length.
func (r Range) Valid() bool {
	return r.End > r.Start
}

// Bounds lets a bare Range be used with ActiveAt.
func (r Range) Bounds() (float64, float64) {
	return r.Start, r.End
}

// DragMode selects which edge of a range a gesture moves.
type DragMode int

const (
	DragMove DragMode = iota
	DragResizeStart
	DragResizeEnd
)

func (m DragMode) String() string {
	switch m {
	case DragMove:
		return "move"
	case DragResizeStart:
		return "resize-start"
	case DragResizeEnd:
		return "resize-end"
	default:
		return "unknown"
	}
}

// ParseDragMode accepts the names produced by String.
func ParseDragMode(s string) (DragMode, bool) {
	switch s {
	case "move":
		return DragMove, true
	case "resize-start":
		return DragResizeStart, true
	case "resize-end":
		return DragResizeEnd, true
	default:
		return DragMove, false
	}
}

// ApplyDrag computes the new bounds of orig after a gesture of delta seconds.
//
// A move never changes the span: when one edge hits 0 or duration the other
// edge is compensated. Resizes keep at least MinSpan between the edges. A
// duration <= 0 means the media length is unknown and only the lower bound is
// enforced.
func ApplyDrag(orig Range, delta float64, mode DragMode, duration float64) Range {
	bounded := duration > 0

	switch mode {
	case DragMove:
		span := orig.Span()
		if bounded && span >= duration {
			return Range{Start: 0, End: duration}
		}
		start := orig.Start + delta
		end := orig.End + delta
		if start < 0 {
			start = 0
			end = span
		}
		if bounded && end > duration {
			end = duration
			start = duration - span
		}
		return Range{Start: start, End: end}

	case DragResizeStart:
		start := orig.Start + delta
		start = math.Min(start, orig.End-MinSpan)
		start = math.Max(start, 0)
		return Range{Start: start, End: orig.End}

	case DragResizeEnd:
		end := orig.End + delta
		end = math.Max(end, orig.Start+MinSpan)
		if bounded {
			end = math.Min(end, duration)
		}
		return Range{Start: orig.Start, End: end}
	}

	return orig
}

// Percent maps t onto [0, 100] relative to duration.
func Percent(t, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return 100 * clamp(t/duration, 0, 1)
}

// TimeAtPercent is the inverse of Percent.
func TimeAtPercent(p, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return clamp(p, 0, 100) / 100 * duration
}

// PixelToTime converts a pointer x coordinate to a media time given the pixel
// bounds of the timeline element.
func PixelToTime(x, left, width, duration float64) float64 {
	if width <= 0 {
		return 0
	}
	return TimeAtPercent((x-left)/width*100, duration)
}

// clamp maps NaN to lo.
func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
