package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// FFmpegService — thin wrapper over the ffmpeg/ffprobe binaries.
// Each method is one subprocess invocation, idempotent and
// independently retryable; assemble.go sequences them.
// ---------------------------------------------------------------------------

// EncodeSettings is the quality/codec profile applied at the merge and
// caption steps. Intermediate steps copy streams where they can.
type EncodeSettings struct {
	VideoCodec   string
	PixelFormat  string
	VideoBitrate string
	AudioBitrate string
	FPS          int
}

type FFmpegService struct{}

func NewFFmpegService() *FFmpegService {
	return &FFmpegService{}
}

// GetMediaDuration returns the duration of an audio or video file in
// seconds, via ffprobe.
func (s *FFmpegService) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration for %s: %w", path, err)
	}

	return durationSec, nil
}

// TrimScaleVideo trims a source segment to length seconds and scales/
// crops it to the target resolution, dropping any source audio.
func (s *FFmpegService) TrimScaleVideo(ctx context.Context, inputPath, outputPath string, length float64, width, height, fps int) error {
	args := buildTrimScaleArgs(inputPath, outputPath, length, width, height, fps)
	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg trim/scale failed for %s: %w", inputPath, err)
	}
	return nil
}

// buildTrimScaleArgs produces the trim+scale command. The scale filter
// covers the target frame then crops, so mismatched aspect sources
// never letterbox.
func buildTrimScaleArgs(inputPath, outputPath string, length float64, width, height, fps int) []string {
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d",
		width, height, width, height, fps,
	)
	return []string{
		"-ss", "0",
		"-t", fmt.Sprintf("%.3f", length),
		"-i", inputPath,
		"-vf", vf,
		"-an", // background segments contribute no audio
		"-y",
		outputPath,
	}
}

// ConcatVideos joins the given clips into one file using the concat
// demuxer with stream copy. The list file is written next to the
// output and removed afterwards.
func (s *FFmpegService) ConcatVideos(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	listPath := filepath.Join(filepath.Dir(outputPath), "concat_list.txt")
	var sb strings.Builder
	for _, path := range clipPaths {
		fmt.Fprintf(&sb, "file '%s'\n", path)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}
	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

// MergeAudioVideo replaces the video's audio track with the given
// audio and encodes at the target profile. audioDuration caps the
// output: the audio track is the duration authority, so a longer
// background is truncated to it.
func (s *FFmpegService) MergeAudioVideo(ctx context.Context, videoPath, audioPath, outputPath string, audioDuration float64, enc EncodeSettings) error {
	args := buildMergeArgs(videoPath, audioPath, outputPath, audioDuration, enc)
	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg merge failed: %w", err)
	}
	return nil
}

func buildMergeArgs(videoPath, audioPath, outputPath string, audioDuration float64, enc EncodeSettings) []string {
	return []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
		"-c:v", enc.VideoCodec,
		"-b:v", enc.VideoBitrate,
		"-pix_fmt", enc.PixelFormat,
		"-c:a", "aac",
		"-b:a", enc.AudioBitrate,
		"-t", fmt.Sprintf("%.3f", audioDuration),
		"-y",
		outputPath,
	}
}

// BurnCaptions renders the ASS subtitle file into the video stream.
// The audio track is copied untouched.
func (s *FFmpegService) BurnCaptions(ctx context.Context, videoPath, subtitlePath, outputPath string, enc EncodeSettings) error {
	args := buildBurnArgs(videoPath, subtitlePath, outputPath, enc)
	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg caption burn-in failed: %w", err)
	}
	return nil
}

func buildBurnArgs(videoPath, subtitlePath, outputPath string, enc EncodeSettings) []string {
	vf := fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(subtitlePath))
	return []string{
		"-i", videoPath,
		"-vf", vf,
		"-c:v", enc.VideoCodec,
		"-b:v", enc.VideoBitrate,
		"-pix_fmt", enc.PixelFormat,
		"-c:a", "copy",
		"-y",
		outputPath,
	}
}

// escapeFFmpegFilterPath escapes special characters in file paths for
// FFmpeg filter syntax: colons, backslashes, and single quotes are
// treated specially inside filter strings.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

// run executes ffmpeg with the given args, keeping the stderr tail for
// error reporting.
func (s *FFmpegService) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w (stderr: %s)", err, tailLines(stderr.String(), 5))
	}
	return nil
}

// tailLines returns the last n non-empty lines of s.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
