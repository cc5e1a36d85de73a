package export

import (
	"fmt"
	"math"
	"strings"
)

const defaultFPS = 30

// GenerateEDL lists events in CMX3600 form. Events sit on the source
// timeline, so record times equal source times. Events with no positive
// span are skipped.
func GenerateEDL(events []Event, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = defaultFPS
	}
	dropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", SanitizeName(title, 70))}
	if dropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	n := 0
	for _, ev := range events {
		if ev.End <= ev.Start {
			continue
		}
		n++
		track := ev.Track
		if track == "" {
			track = TrackVideo
		}
		in := Timecode(ev.Start, fps)
		out := Timecode(ev.End, fps)
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", n, "AX", track, in, out, in, out),
			fmt.Sprintf("* FROM CLIP NAME:  %s", SanitizeName(ev.Name, 60)),
		)
		if ev.Source != "" {
			lines = append(lines, fmt.Sprintf("* SOURCE FILE:  %s", ev.Source))
		}
		if ev.Note != "" {
			lines = append(lines, fmt.Sprintf("* COMMENT:  %s", oneLine(ev.Note)))
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// Timecode renders seconds as HH:MM:SS:FF at fps.
func Timecode(seconds float64, fps int) string {
	if seconds < 0 {
		seconds = 0
	}
	totalFrames := int(math.Round(seconds * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", totalSeconds/3600, totalSeconds/60%60, totalSeconds%60, frames)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func oneLine(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}
