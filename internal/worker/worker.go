package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/driftline/narravid/internal/assets"
	"github.com/driftline/narravid/internal/config"
	"github.com/driftline/narravid/internal/models"
	"github.com/driftline/narravid/internal/services"
)

// SegmentSelector plans the background spans covering a target
// duration. Satisfied by assets.Selector.
type SegmentSelector interface {
	SelectSegments(ctx context.Context, targetDuration float64, videoType string) ([]assets.Span, error)
}

// VideoAssembler runs the ffmpeg assembly pipeline. Satisfied by
// services.Assembler.
type VideoAssembler interface {
	Assemble(ctx context.Context, req services.AssembleRequest) (string, error)
}

// Workspace resolves a job's working directory. Satisfied by
// store.Store.
type Workspace interface {
	JobDir(id string) string
}

// Worker turns one job's text into its final captioned video. It is
// stateless between jobs; all per-job state lives in the job directory.
type Worker struct {
	cfg       *config.Config
	workspace Workspace
	synth     services.Synthesizer
	stt       services.Transcriber // nil disables word-level captions
	probe     assets.DurationProber
	selector  SegmentSelector
	assembler VideoAssembler
}

func New(cfg *config.Config, workspace Workspace, synth services.Synthesizer, stt services.Transcriber, probe assets.DurationProber, selector SegmentSelector, assembler VideoAssembler) *Worker {
	return &Worker{
		cfg:       cfg,
		workspace: workspace,
		synth:     synth,
		stt:       stt,
		probe:     probe,
		selector:  selector,
		assembler: assembler,
	}
}

// Process runs the full pipeline for job: clean text, synthesize
// speech, obtain word timings, select background footage, assemble.
// Returns the final artifact path. Status transitions are the
// scheduler's responsibility, never the worker's.
func (w *Worker) Process(ctx context.Context, job *models.Job) (string, error) {
	workDir := w.workspace.JobDir(job.ID)
	params := job.Params

	text := services.CleanText(job.Text)
	if text == "" {
		return "", models.NewPipelineError(models.CodeValidation,
			fmt.Errorf("text is empty after cleaning"))
	}

	log.Printf("[Worker] Job %s: synthesizing speech (voice=%s rate=%.2f)", job.ID, params.Voice, params.SpeechRate)
	synthRes, err := w.synth.Synthesize(ctx, services.SynthesisRequest{
		Text:       text,
		Language:   params.Language,
		Voice:      params.Voice,
		SpeechRate: params.SpeechRate,
		OutDir:     workDir,
	})
	if err != nil {
		return "", err
	}

	cues, err := w.captionCues(ctx, job.ID, synthRes, params.Language)
	if err != nil {
		return "", err
	}

	audioDuration, err := w.probe.GetMediaDuration(ctx, synthRes.AudioPath)
	if err != nil {
		return "", models.NewPipelineError(models.CodeStorage,
			fmt.Errorf("probe synthesized audio: %w", err))
	}
	if audioDuration <= 0 {
		return "", models.NewPipelineError(models.CodeSynthesisFailed,
			fmt.Errorf("synthesized audio has no duration"))
	}

	log.Printf("[Worker] Job %s: selecting %s footage for %.2fs", job.ID, params.VideoType, audioDuration)
	spans, err := w.selector.SelectSegments(ctx, audioDuration, params.VideoType)
	if err != nil {
		return "", err
	}

	width, height, err := w.cfg.Resolution(params.VideoQuality, params.VideoType)
	if err != nil {
		return "", models.NewPipelineError(models.CodeValidation, err)
	}
	preset := w.cfg.Video.Qualities[params.VideoQuality]

	resultPath, err := w.assembler.Assemble(ctx, services.AssembleRequest{
		JobID:         job.ID,
		WorkDir:       workDir,
		AudioPath:     synthRes.AudioPath,
		AudioDuration: audioDuration,
		Spans:         spans,
		Cues:          cues,
		Width:         width,
		Height:        height,
		Encode: services.EncodeSettings{
			VideoCodec:   w.cfg.FFmpeg.VideoCodec,
			PixelFormat:  w.cfg.FFmpeg.PixelFormat,
			VideoBitrate: preset.VideoBitrate,
			AudioBitrate: w.cfg.FFmpeg.AudioBitrate,
			FPS:          w.cfg.Video.FPS,
		},
		VideoFormat: w.cfg.FFmpeg.VideoFormat,
		Captions: services.CaptionStyle{
			FontName:      w.cfg.Captions.FontName,
			CanvasWidth:   width,
			CanvasHeight:  height,
			WordsPerChunk: w.cfg.Captions.PerLine,
		},
	})
	if err != nil {
		return "", err
	}

	log.Printf("[Worker] Job %s: assembly complete", job.ID)
	return resultPath, nil
}

// captionCues prefers timings delivered by the synthesizer and falls
// back to transcribing the audio. With no transcriber configured the
// video is produced without captions.
func (w *Worker) captionCues(ctx context.Context, jobID string, synthRes *services.SynthesisResult, language string) ([]models.CaptionCue, error) {
	if len(synthRes.WordTimings) > 0 {
		return synthRes.WordTimings, nil
	}
	if w.stt == nil {
		log.Printf("[Worker] Job %s: no transcriber configured, producing captionless video", jobID)
		return nil, nil
	}

	log.Printf("[Worker] Job %s: transcribing audio for word timings", jobID)
	cues, err := w.stt.Transcribe(ctx, synthRes.AudioPath, services.TimingLanguage(language))
	if err != nil {
		return nil, err
	}
	return cues, nil
}
