package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// NormalizeSettings is the encode profile for audio normalization.
type NormalizeSettings struct {
	Codec      string
	Format     string
	Bitrate    string
	Filter     string
	SampleRate int
	Channels   int
}

// HasAudioStream reports whether the file contains at least one audio
// stream, via ffprobe.
func (s *FFmpegService) HasAudioStream(ctx context.Context, path string) (bool, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	return strings.TrimSpace(string(output)) != "", nil
}

// DetectMeanVolume measures the mean volume of the file's audio in dB
// using the volumedetect filter. The stats land on stderr.
func (s *FFmpegService) DetectMeanVolume(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-i", path,
		"-af", "volumedetect",
		"-f", "null", "-",
	}

	stderr, err := s.runCaptureStderr(ctx, args)
	if err != nil {
		return 0, fmt.Errorf("ffmpeg volumedetect failed for %s: %w", path, err)
	}

	db, ok := parseMeanVolume(stderr)
	if !ok {
		return 0, fmt.Errorf("no mean_volume in volumedetect output for %s", path)
	}
	return db, nil
}

// parseMeanVolume extracts the dB value from a "mean_volume: -23.5 dB"
// line of volumedetect output.
func parseMeanVolume(output string) (float64, bool) {
	for _, line := range strings.Split(output, "\n") {
		idx := strings.Index(line, "mean_volume:")
		if idx < 0 {
			continue
		}
		var db float64
		if _, err := fmt.Sscanf(line[idx:], "mean_volume: %f", &db); err == nil {
			return db, true
		}
	}
	return 0, false
}

// IsSilent reports whether the file has effectively no audible audio.
// A file with no audio stream counts as silent; otherwise the mean
// volume is converted to linear amplitude and compared against
// threshold.
func (s *FFmpegService) IsSilent(ctx context.Context, path string, threshold float64) (bool, error) {
	hasAudio, err := s.HasAudioStream(ctx, path)
	if err != nil {
		return false, err
	}
	if !hasAudio {
		return true, nil
	}

	db, err := s.DetectMeanVolume(ctx, path)
	if err != nil {
		return false, err
	}
	return dbToLinear(db) < threshold, nil
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// NormalizeAudio re-encodes the input with a loudness-normalization
// filter at the given profile.
func (s *FFmpegService) NormalizeAudio(ctx context.Context, inputPath, outputPath string, set NormalizeSettings) error {
	args := buildNormalizeArgs(inputPath, outputPath, set)
	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg normalize failed for %s: %w", inputPath, err)
	}
	return nil
}

func buildNormalizeArgs(inputPath, outputPath string, set NormalizeSettings) []string {
	return []string{
		"-i", inputPath,
		"-c:a", set.Codec,
		"-f", set.Format,
		"-b:a", set.Bitrate,
		"-af", set.Filter,
		"-ar", strconv.Itoa(set.SampleRate),
		"-ac", strconv.Itoa(set.Channels),
		"-preset", "fast",
		"-y",
		outputPath,
	}
}

// runCaptureStderr executes ffmpeg and returns its full stderr even on
// success. Filters like volumedetect report their stats there.
func (s *FFmpegService) runCaptureStderr(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w (stderr: %s)", err, tailLines(stderr.String(), 5))
	}
	return stderr.String(), nil
}
