package services

import (
	"math"
	"strings"
	"testing"
)

func TestBuildNormalizeArgs(t *testing.T) {
	set := NormalizeSettings{
		Codec:      "libmp3lame",
		Format:     "mp3",
		Bitrate:    "256k",
		Filter:     "loudnorm",
		SampleRate: 44100,
		Channels:   2,
	}
	args := buildNormalizeArgs("/store/in.mp3", "/store/in_normalized.mp3", set)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-c:a libmp3lame") || !strings.Contains(joined, "-f mp3") {
		t.Errorf("audio encode profile missing: %s", joined)
	}
	if !strings.Contains(joined, "-af loudnorm") {
		t.Errorf("normalization filter missing: %s", joined)
	}
	if !strings.Contains(joined, "-ar 44100 -ac 2") {
		t.Errorf("sample rate/channels missing: %s", joined)
	}
	if args[len(args)-1] != "/store/in_normalized.mp3" {
		t.Errorf("output path must be last, got %s", args[len(args)-1])
	}
}

func TestParseMeanVolume(t *testing.T) {
	output := strings.Join([]string{
		"[Parsed_volumedetect_0 @ 0x55] n_samples: 441000",
		"[Parsed_volumedetect_0 @ 0x55] mean_volume: -23.5 dB",
		"[Parsed_volumedetect_0 @ 0x55] max_volume: -3.1 dB",
	}, "\n")

	db, ok := parseMeanVolume(output)
	if !ok {
		t.Fatal("mean_volume not found")
	}
	if db != -23.5 {
		t.Errorf("got %v, want -23.5", db)
	}

	if _, ok := parseMeanVolume("frame=  100 fps=0.0"); ok {
		t.Error("expected no match without a mean_volume line")
	}
}

func TestDbToLinear(t *testing.T) {
	cases := []struct{ db, want float64 }{
		{0, 1},
		{-20, 0.1},
		{-40, 0.01},
	}
	for _, c := range cases {
		if got := dbToLinear(c.db); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("dbToLinear(%v) = %v, want %v", c.db, got, c.want)
		}
	}
}
