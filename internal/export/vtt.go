package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/framecraft/studio/internal/timeline"
)

var cueEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// GenerateVTT renders transcript segments as WebVTT cues. overrides is keyed
// by segment index and replaces that cue's text. Segments whose final text is
// blank are left out.
func GenerateVTT(segments []timeline.TranscriptSegment, overrides map[int]string) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n")

	cue := 0
	for i, seg := range segments {
		text := seg.Text
		if o, ok := overrides[i]; ok {
			text = o
		}
		text = strings.TrimSpace(text)
		if text == "" || seg.EndTime <= seg.StartTime {
			continue
		}
		cue++
		if seg.Speaker != "" {
			text = fmt.Sprintf("<v %s>%s", cueEscaper.Replace(seg.Speaker), cueEscaper.Replace(text))
		} else {
			text = cueEscaper.Replace(text)
		}
		fmt.Fprintf(&b, "\n%d\n%s --> %s\n%s\n", cue, cueTime(seg.StartTime), cueTime(seg.EndTime), text)
	}
	return b.String()
}

// cueTime renders seconds as HH:MM:SS.mmm.
func cueTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
