// Package editor implements the pointer gesture state machine of the
// timeline: hit-testing clip edges, live drag/resize of clip ranges, click to
// seek, and single selection.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/framecraft/studio/internal/timeline"
)

// HandleWidth is the width in pixels of the resize zones at each clip edge.
const HandleWidth = 8.0

var (
	ErrDragActive  = errors.New("a drag is already in progress")
	ErrNotDragging = errors.New("no drag in progress")
	ErrNoClip      = errors.New("clip not found")
	ErrMissedClip  = errors.New("pointer is outside the clip")
	ErrNoGeometry  = errors.New("track geometry has no width")
)

// Geometry is the rendered pixel extent of the track area.
type Geometry struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
}

// Clip is one editable range on a track.
type Clip struct {
	ID    string  `json:"id"`
	Track string  `json:"track"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (c Clip) Bounds() (float64, float64) {
	return c.Start, c.End
}

// ClipStore is the owner of the clips the editor manipulates.
type ClipStore interface {
	Clip(id string) (Clip, bool)
	SetRange(id string, r timeline.Range) error
}

// Zone is the part of a clip under the pointer.
type Zone int

const (
	ZoneNone Zone = iota
	ZoneMove
	ZoneResizeStart
	ZoneResizeEnd
)

func (z Zone) String() string {
	switch z {
	case ZoneMove:
		return "move"
	case ZoneResizeStart:
		return "resize-start"
	case ZoneResizeEnd:
		return "resize-end"
	default:
		return "none"
	}
}

// Mode converts a zone to the drag it starts.
func (z Zone) Mode() (timeline.DragMode, bool) {
	switch z {
	case ZoneMove:
		return timeline.DragMove, true
	case ZoneResizeStart:
		return timeline.DragResizeStart, true
	case ZoneResizeEnd:
		return timeline.DragResizeEnd, true
	default:
		return timeline.DragMove, false
	}
}

// HitTest classifies x against a clip rendered at [clipLeft, clipLeft+clipWidth].
// Clips narrower than three handles get handles of a third of their width so
// the move zone never disappears.
func HitTest(x, clipLeft, clipWidth, handle float64) Zone {
	if clipWidth <= 0 || x < clipLeft || x > clipLeft+clipWidth {
		return ZoneNone
	}
	if handle*3 > clipWidth {
		handle = clipWidth / 3
	}
	switch {
	case x-clipLeft <= handle:
		return ZoneResizeStart
	case clipLeft+clipWidth-x <= handle:
		return ZoneResizeEnd
	default:
		return ZoneMove
	}
}

// ClipPixels returns the rendered left edge and width of a clip.
func ClipPixels(c Clip, g Geometry, duration float64) (left, width float64) {
	left = g.Left + timeline.Percent(c.Start, duration)/100*g.Width
	right := g.Left + timeline.Percent(c.End, duration)/100*g.Width
	return left, right - left
}

// DragState describes the gesture in progress.
type DragState struct {
	ClipID   string         `json:"clipId"`
	Mode     string         `json:"mode"`
	StartX   float64        `json:"startX"`
	Original timeline.Range `json:"original"`
	Current  timeline.Range `json:"current"`
	Geometry Geometry       `json:"geometry"`

	mode  timeline.DragMode
	moved bool
}

// Editor is the idle/dragging state machine for one timeline.
type Editor struct {
	mu       sync.Mutex
	clips    ClipStore
	duration func() float64
	logger   *slog.Logger

	drag          *DragState
	suppressClick bool
	selected      string
}

func New(clips ClipStore, duration func() float64, logger *slog.Logger) *Editor {
	return &Editor{clips: clips, duration: duration, logger: logger}
}

// PointerDown starts a drag on clipID if x lands on one of its zones.
func (e *Editor) PointerDown(clipID string, x float64, g Geometry) (Zone, error) {
	if g.Width <= 0 {
		return ZoneNone, ErrNoGeometry
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drag != nil {
		return ZoneNone, ErrDragActive
	}
	clip, ok := e.clips.Clip(clipID)
	if !ok {
		return ZoneNone, fmt.Errorf("%w: %s", ErrNoClip, clipID)
	}

	left, width := ClipPixels(clip, g, e.duration())
	zone := HitTest(x, left, width, HandleWidth)
	mode, ok := zone.Mode()
	if !ok {
		return ZoneNone, ErrMissedClip
	}

	orig := timeline.Range{Start: clip.Start, End: clip.End}
	e.drag = &DragState{
		ClipID:   clipID,
		Mode:     mode.String(),
		StartX:   x,
		Original: orig,
		Current:  orig,
		Geometry: g,
		mode:     mode,
	}
	e.suppressClick = false
	e.logger.Debug("drag started", "clip_id", clipID, "mode", mode.String())
	return zone, nil
}

// PointerMove applies the gesture so far and writes the new range through to
// the clip store.
func (e *Editor) PointerMove(x float64) (timeline.Range, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.moveLocked(x)
}

func (e *Editor) moveLocked(x float64) (timeline.Range, error) {
	d := e.drag
	if d == nil {
		return timeline.Range{}, ErrNotDragging
	}
	duration := e.duration()
	delta := (x - d.StartX) / d.Geometry.Width * duration
	r := timeline.ApplyDrag(d.Original, delta, d.mode, duration)
	if err := e.clips.SetRange(d.ClipID, r); err != nil {
		return d.Current, err
	}
	d.Current = r
	if x != d.StartX {
		d.moved = true
	}
	return r, nil
}

// PointerUp applies the final position and ends the drag. The values written
// during the drag stay in place.
func (e *Editor) PointerUp(x float64) (timeline.Range, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.moveLocked(x)
	if errors.Is(err, ErrNotDragging) {
		return r, err
	}
	d := e.drag
	e.drag = nil
	e.suppressClick = d.moved
	e.logger.Debug("drag ended", "clip_id", d.ClipID, "start", d.Current.Start, "end", d.Current.End)
	return d.Current, err
}

// Click converts a click on the track background to a seek time. Clicks are
// ignored while dragging and the one click following a drag that moved.
func (e *Editor) Click(x float64, g Geometry) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.drag != nil {
		return 0, false
	}
	if e.suppressClick {
		e.suppressClick = false
		return 0, false
	}
	if g.Width <= 0 {
		return 0, false
	}
	return timeline.PixelToTime(x, g.Left, g.Width, e.duration()), true
}

// Select sets the selected clip; an empty id clears the selection.
func (e *Editor) Select(clipID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clipID != "" {
		if _, ok := e.clips.Clip(clipID); !ok {
			return fmt.Errorf("%w: %s", ErrNoClip, clipID)
		}
	}
	e.selected = clipID
	return nil
}

func (e *Editor) Selected() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected, e.selected != ""
}

func (e *Editor) Dragging() (DragState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.drag == nil {
		return DragState{}, false
	}
	return *e.drag, true
}

// Forget drops the selection and any drag referencing a removed clip.
func (e *Editor) Forget(clipID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.selected == clipID {
		e.selected = ""
	}
	if e.drag != nil && e.drag.ClipID == clipID {
		e.drag = nil
	}
}
