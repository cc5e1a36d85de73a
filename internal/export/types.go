// Package export renders a session's timeline into interchange formats: WebVTT
// captions for players and CMX3600 EDLs for NLE round-tripping.
package export

import "fmt"

type Format string

const (
	FormatVTT Format = "vtt"
	FormatEDL Format = "edl"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatVTT, FormatEDL:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type a rendered document is served with.
func (f Format) ContentType() string {
	if f == FormatVTT {
		return "text/vtt; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}

// Track is the EDL channel an event lands on.
type Track string

const (
	TrackVideo Track = "V"
	TrackAudio Track = "A"
)

// Event is one span of the source video to list in an EDL.
type Event struct {
	Name   string
	Source string
	Track  Track
	Start  float64
	End    float64
	Note   string
}
