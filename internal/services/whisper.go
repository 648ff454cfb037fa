package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftline/narravid/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// Transcriber — boundary to the timing capability. Given an audio
// file it returns word-level caption cues in order.
// ---------------------------------------------------------------------------

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]models.CaptionCue, error)
}

// WhisperService transcribes audio via OpenAI Whisper with word-level
// timestamp granularity.
type WhisperService struct {
	client *openai.Client
}

var _ Transcriber = (*WhisperService)(nil)

func NewWhisperService(apiKey string) *WhisperService {
	return &WhisperService{
		client: openai.NewClient(apiKey),
	}
}

// Transcribe returns one cue per spoken word, with start/end seconds.
// language is the short code the API expects ("en"), see TimingLanguage.
func (s *WhisperService) Transcribe(ctx context.Context, audioPath, language string) ([]models.CaptionCue, error) {
	if language == "" {
		language = "en"
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, models.NewPipelineError(models.CodeStorage,
			fmt.Errorf("failed to open audio for transcription: %w", err))
	}
	defer f.Close()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   f,
		FilePath: filepath.Base(audioPath), // filename hint required by the library
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, models.NewPipelineError(models.CodeTranscriptionFailed,
			fmt.Errorf("whisper transcription failed: %w", err))
	}

	if len(resp.Words) == 0 {
		return nil, models.NewPipelineError(models.CodeTranscriptionFailed,
			fmt.Errorf("whisper returned no word timestamps (text: %q)", resp.Text))
	}

	cues := make([]models.CaptionCue, len(resp.Words))
	for i, w := range resp.Words {
		cues[i] = models.CaptionCue{
			Text:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		}
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(cues), resp.Duration, truncateString(resp.Text, 80))

	return cues, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
