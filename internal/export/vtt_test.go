package export

import (
	"testing"

	"github.com/framecraft/studio/internal/timeline"
)

func TestGenerateVTT(t *testing.T) {
	segs := []timeline.TranscriptSegment{
		{StartTime: 0, EndTime: 2.5, Text: "Hello there"},
		{StartTime: 2.5, EndTime: 4, Text: "wrong words"},
		{StartTime: 4, EndTime: 5, Text: "   "},
		{StartTime: 3661.042, EndTime: 3662, Text: "a < b & c", Speaker: "Ana"},
	}

	got := GenerateVTT(segs, map[int]string{1: "right words"})
	want := "WEBVTT\n" +
		"\n1\n00:00:00.000 --> 00:00:02.500\nHello there\n" +
		"\n2\n00:00:02.500 --> 00:00:04.000\nright words\n" +
		"\n3\n01:01:01.042 --> 01:01:02.000\n<v Ana>a &lt; b &amp; c\n"
	if got != want {
		t.Errorf("GenerateVTT() =\n%s\nwant\n%s", got, want)
	}
}

func TestGenerateVTT_Empty(t *testing.T) {
	if got := GenerateVTT(nil, nil); got != "WEBVTT\n" {
		t.Errorf("GenerateVTT(nil) = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("vtt"); err != nil || f != FormatVTT {
		t.Errorf("ParseFormat(vtt) = %q, %v", f, err)
	}
	if _, err := ParseFormat("srt"); err == nil {
		t.Error("ParseFormat(srt) should fail")
	}
}
