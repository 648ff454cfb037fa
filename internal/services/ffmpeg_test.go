package services

import (
	"strings"
	"testing"
)

func TestBuildTrimScaleArgs(t *testing.T) {
	args := buildTrimScaleArgs("/pool/clip.mp4", "/jobs/x/segment_000.mp4", 4.5, 1920, 1080, 30)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-t 4.500") {
		t.Errorf("missing trim length: %s", joined)
	}
	if !strings.Contains(joined, "scale=1920:1080:force_original_aspect_ratio=increase,crop=1920:1080,fps=30") {
		t.Errorf("missing scale/crop filter: %s", joined)
	}
	if !strings.Contains(joined, "-an") {
		t.Errorf("source audio must be dropped: %s", joined)
	}
	if args[len(args)-1] != "/jobs/x/segment_000.mp4" {
		t.Errorf("output path must be last, got %s", args[len(args)-1])
	}
}

func TestBuildMergeArgs(t *testing.T) {
	enc := EncodeSettings{
		VideoCodec:   "libx264",
		PixelFormat:  "yuv420p",
		VideoBitrate: "5000k",
		AudioBitrate: "256k",
		FPS:          30,
	}
	args := buildMergeArgs("/jobs/x/merged.mp4", "/jobs/x/speech.mp3", "/jobs/x/out.mp4", 12.345, enc)
	joined := strings.Join(args, " ")

	// Audio track is the duration authority
	if !strings.Contains(joined, "-t 12.345") {
		t.Errorf("output must be capped to audio duration: %s", joined)
	}
	if !strings.Contains(joined, "-map 0:v -map 1:a") {
		t.Errorf("stream mapping wrong: %s", joined)
	}
	if !strings.Contains(joined, "-c:v libx264") || !strings.Contains(joined, "-b:v 5000k") {
		t.Errorf("encode profile missing: %s", joined)
	}
}

func TestBuildBurnArgs(t *testing.T) {
	enc := EncodeSettings{VideoCodec: "libx264", PixelFormat: "yuv420p", VideoBitrate: "5000k"}
	args := buildBurnArgs("/jobs/x/nocaps.mp4", "/jobs/x/captions.ass", "/jobs/x/final.mp4", enc)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "ass='/jobs/x/captions.ass'") {
		t.Errorf("subtitle filter missing: %s", joined)
	}
	if !strings.Contains(joined, "-c:a copy") {
		t.Errorf("audio must be copied untouched: %s", joined)
	}
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/plain/path.ass", "/plain/path.ass"},
		{"C:\\videos\\subs.ass", "C\\:\\\\videos\\\\subs.ass"},
		{"/tmp/it's.ass", "/tmp/it'\\''s.ass"},
	}
	for _, c := range cases {
		if got := escapeFFmpegFilterPath(c.in); got != c.want {
			t.Errorf("escape(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTailLines(t *testing.T) {
	in := "one\ntwo\nthree\nfour"
	if got := tailLines(in, 2); got != "three | four" {
		t.Errorf("got %q", got)
	}
	if got := tailLines("single", 5); got != "single" {
		t.Errorf("got %q", got)
	}
}
