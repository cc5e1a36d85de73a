package editor

import (
	"sort"

	"github.com/framecraft/studio/internal/timeline"
)

// Placement is a clip positioned on a track lane, with left and width as
// percentages of the track.
type Placement struct {
	Clip
	Lane     int     `json:"lane"`
	LeftPct  float64 `json:"leftPct"`
	WidthPct float64 `json:"widthPct"`
}

type TrackLayout struct {
	Track string      `json:"track"`
	Lanes int         `json:"lanes"`
	Clips []Placement `json:"clips"`
}

// Layout groups clips by track and assigns lanes so that clips sharing a lane
// never overlap. Tracks named in order come first in that order; any other
// tracks follow in order of first appearance.
func Layout(clips []Clip, duration float64, order ...string) []TrackLayout {
	byTrack := make(map[string][]Clip)
	var tracks []string
	seen := make(map[string]bool)
	for _, name := range order {
		if !seen[name] {
			seen[name] = true
			tracks = append(tracks, name)
		}
	}
	for _, c := range clips {
		if !seen[c.Track] {
			seen[c.Track] = true
			tracks = append(tracks, c.Track)
		}
		byTrack[c.Track] = append(byTrack[c.Track], c)
	}

	out := make([]TrackLayout, 0, len(tracks))
	for _, name := range tracks {
		out = append(out, layoutTrack(name, byTrack[name], duration))
	}
	return out
}

func layoutTrack(name string, clips []Clip, duration float64) TrackLayout {
	sorted := append([]Clip(nil), clips...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	// laneEnds[i] is the end time of the last clip placed in lane i.
	var laneEnds []float64
	placements := make([]Placement, 0, len(sorted))
	for _, c := range sorted {
		lane := -1
		for i, end := range laneEnds {
			if end <= c.Start {
				lane = i
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, 0)
		}
		laneEnds[lane] = c.End

		left := timeline.Percent(c.Start, duration)
		placements = append(placements, Placement{
			Clip:     c,
			Lane:     lane,
			LeftPct:  left,
			WidthPct: timeline.Percent(c.End, duration) - left,
		})
	}

	lanes := len(laneEnds)
	if lanes == 0 {
		lanes = 1
	}
	return TrackLayout{Track: name, Lanes: lanes, Clips: placements}
}
