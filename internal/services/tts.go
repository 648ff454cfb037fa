package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/driftline/narravid/internal/models"
)

// ---------------------------------------------------------------------------
// Synthesizer — boundary to the speech-synthesis capability.
// The core never sees the model; it consumes an audio file (and word
// timings when the provider can supply them directly).
// ---------------------------------------------------------------------------

// SynthesisRequest carries everything the provider needs for one job.
// OutDir is the job's working directory; the adapter writes the audio
// file there and nowhere else.
type SynthesisRequest struct {
	Text       string
	Language   string
	Voice      string
	SpeechRate float64
	OutDir     string
}

// SynthesisResult is the adapter's output contract. WordTimings is
// empty when the provider cannot time words itself; the worker then
// falls back to the transcription adapter.
type SynthesisResult struct {
	AudioPath   string
	WordTimings []models.CaptionCue
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// ---------------------------------------------------------------------------
// Language and voice tables — the closed enumerations validated at
// submission. Voice prefixes are tied to their language pool.
// ---------------------------------------------------------------------------

var languageNames = map[string]string{
	"en-us": "American English",
	"en-gb": "British English",
}

var voicesByLanguage = map[string][]string{
	"en-us": {
		"af_heart", "af_alloy", "af_aoede", "af_bella", "af_jessica",
		"af_kore", "af_nicole", "af_nova", "af_river", "af_sarah", "af_sky",
		"am_adam", "am_echo", "am_eric", "am_fenrir", "am_liam",
		"am_michael", "am_onyx", "am_puck", "am_santa",
	},
	"en-gb": {
		"bf_alice", "bf_emma", "bf_isabella", "bf_lily",
		"bm_daniel", "bm_fable", "bm_george", "bm_lewis",
	},
}

// AvailableLanguages lists supported language codes, sorted.
func AvailableLanguages() []string {
	langs := make([]string, 0, len(languageNames))
	for code := range languageNames {
		langs = append(langs, code)
	}
	sort.Strings(langs)
	return langs
}

// AvailableVoices lists every supported voice across languages, sorted.
func AvailableVoices() []string {
	var voices []string
	for _, vs := range voicesByLanguage {
		voices = append(voices, vs...)
	}
	sort.Strings(voices)
	return voices
}

// AvailableVoicesByLanguage returns the per-language voice pools.
func AvailableVoicesByLanguage() map[string][]string {
	out := make(map[string][]string, len(voicesByLanguage))
	for lang, vs := range voicesByLanguage {
		out[lang] = append([]string(nil), vs...)
	}
	return out
}

// SupportsLanguage reports whether the language code is in the table.
func SupportsLanguage(language string) bool {
	_, ok := languageNames[language]
	return ok
}

// SupportsVoice reports whether the voice belongs to the language's pool.
func SupportsVoice(language, voice string) bool {
	for _, v := range voicesByLanguage[language] {
		if v == voice {
			return true
		}
	}
	return false
}

// TimingLanguage maps a TTS language code to the code the timing
// adapter expects ("en-us" → "en").
func TimingLanguage(language string) string {
	if len(language) >= 2 {
		return language[:2]
	}
	return language
}

// ---------------------------------------------------------------------------
// SpeechService — HTTP client for a Kokoro-compatible TTS server
// (OpenAI-style /v1/audio/speech endpoint).
// ---------------------------------------------------------------------------

const (
	ttsModel        = "kokoro"
	ttsOutputFormat = "mp3"
)

type SpeechService struct {
	baseURL string
	client  *http.Client
}

var _ Synthesizer = (*SpeechService)(nil)

func NewSpeechService(baseURL string) *SpeechService {
	return &SpeechService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	LangCode       string  `json:"lang_code,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	ResponseFormat string  `json:"response_format"`
}

// Synthesize converts text into an audio file inside req.OutDir. The
// server streams raw audio back; word timings are not provided, so
// the caller must use the transcription adapter for caption cues.
func (s *SpeechService) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error) {
	if !SupportsLanguage(req.Language) {
		return nil, models.NewPipelineError(models.CodeUnsupportedLanguage,
			fmt.Errorf("unsupported language %q", req.Language))
	}
	if !SupportsVoice(req.Language, req.Voice) {
		return nil, models.NewPipelineError(models.CodeUnsupportedVoice,
			fmt.Errorf("unsupported voice %q for language %q", req.Voice, req.Language))
	}

	body := speechRequest{
		Model:          ttsModel,
		Input:          req.Text,
		Voice:          req.Voice,
		LangCode:       langCode(req.Language),
		Speed:          req.SpeechRate,
		ResponseFormat: ttsOutputFormat,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("failed to marshal TTS request: %w", err))
	}

	url := s.baseURL + "/v1/audio/speech"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("failed to create TTS request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Printf("[TTS] Generating speech (voice=%s, lang=%s, rate=%.2f, textLen=%d)",
		req.Voice, req.Language, req.SpeechRate, len(req.Text))

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("TTS request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("TTS server returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("failed to read TTS audio response: %w", err))
	}
	if len(audioData) == 0 {
		return nil, models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("TTS server returned empty audio"))
	}

	audioPath := filepath.Join(req.OutDir, "speech."+ttsOutputFormat)
	if err := os.WriteFile(audioPath, audioData, 0644); err != nil {
		return nil, models.NewPipelineError(models.CodeStorage,
			fmt.Errorf("failed to write audio file: %w", err))
	}

	log.Printf("[TTS] Speech generated (%d bytes) → %s", len(audioData), audioPath)
	return &SynthesisResult{AudioPath: audioPath}, nil
}

// langCode maps the public language code to the synthesis engine's
// single-letter code ("en-us" → "a", "en-gb" → "b").
func langCode(language string) string {
	switch language {
	case "en-us":
		return "a"
	case "en-gb":
		return "b"
	default:
		return ""
	}
}
