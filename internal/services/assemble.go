package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/driftline/narravid/internal/assets"
	"github.com/driftline/narravid/internal/models"
	"golang.org/x/sync/errgroup"
)

// Assembly step identifiers, reported inside AssemblyFailed errors so
// a failed job names the offending step.
const (
	StepTrim     = "trim"
	StepConcat   = "concat"
	StepMerge    = "merge"
	StepCaptions = "captions"
)

// trimConcurrency caps parallel trim subprocesses per assembly run.
const trimConcurrency = 2

// AssembleRequest carries one job's assembly inputs. WorkDir is the
// job directory; every intermediate and the final artifact land there.
type AssembleRequest struct {
	JobID         string
	WorkDir       string
	AudioPath     string
	AudioDuration float64 // seconds; the output duration authority
	Spans         []assets.Span
	Cues          []models.CaptionCue
	Width         int
	Height        int
	Encode        EncodeSettings
	VideoFormat   string
	Captions      CaptionStyle
}

// Assembler sequences the ffmpeg pipeline: trim each background span,
// concatenate, merge with the audio track, burn in captions.
type Assembler struct {
	ffmpeg *FFmpegService
}

func NewAssembler(ffmpeg *FFmpegService) *Assembler {
	return &Assembler{ffmpeg: ffmpeg}
}

// Assemble produces the final captioned video and returns its path.
// On success, intermediates are removed and only the final artifact
// remains. On failure, the failing step's partial output is removed
// and an AssemblyFailed error names the step; upstream intermediates
// stay in the job dir for diagnostics.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (string, error) {
	if len(req.Spans) == 0 {
		return "", models.NewStepError(models.CodeAssemblyFailed, StepTrim,
			fmt.Errorf("no background spans to assemble"))
	}

	// Step 1: trim each selected span to its allotted length.
	trimmed := make([]string, len(req.Spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trimConcurrency)
	for i, span := range req.Spans {
		i, span := i, span
		g.Go(func() error {
			out := filepath.Join(req.WorkDir, fmt.Sprintf("segment_%03d.%s", i, req.VideoFormat))
			if err := a.ffmpeg.TrimScaleVideo(gctx, span.Ref.Path, out, span.Length, req.Width, req.Height, req.Encode.FPS); err != nil {
				os.Remove(out)
				return err
			}
			trimmed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", models.NewStepError(models.CodeAssemblyFailed, StepTrim, err)
	}

	// Step 2: concatenate the trimmed segments into one background track.
	concatPath := filepath.Join(req.WorkDir, fmt.Sprintf("%s_Merged.%s", req.JobID, req.VideoFormat))
	if err := a.ffmpeg.ConcatVideos(ctx, trimmed, concatPath); err != nil {
		os.Remove(concatPath)
		return "", models.NewStepError(models.CodeAssemblyFailed, StepConcat, err)
	}

	// Step 3: merge the background with the audio track, truncated to
	// the audio duration, encoding at the requested profile.
	mergedPath := filepath.Join(req.WorkDir, fmt.Sprintf("%s_NoCaptions.%s", req.JobID, req.VideoFormat))
	if err := a.ffmpeg.MergeAudioVideo(ctx, concatPath, req.AudioPath, mergedPath, req.AudioDuration, req.Encode); err != nil {
		os.Remove(mergedPath)
		return "", models.NewStepError(models.CodeAssemblyFailed, StepMerge, err)
	}

	finalPath := filepath.Join(req.WorkDir, fmt.Sprintf("%s_Final.%s", req.JobID, req.VideoFormat))

	// Step 4: burn in the caption cues. Without cues the merged video
	// is promoted to the final artifact as-is.
	if len(req.Cues) == 0 {
		log.Printf("[Assemble] Job %s: no caption cues, finalizing without captions", req.JobID)
		if err := os.Rename(mergedPath, finalPath); err != nil {
			return "", models.NewStepError(models.CodeAssemblyFailed, StepCaptions,
				fmt.Errorf("failed to finalize video: %w", err))
		}
		removeFiles(append(trimmed, concatPath)...)
		return finalPath, nil
	}

	subtitlePath := filepath.Join(req.WorkDir, fmt.Sprintf("%s_Captions.ass", req.JobID))
	if err := WriteASSCaptions(req.Cues, subtitlePath, req.Captions); err != nil {
		return "", models.NewStepError(models.CodeAssemblyFailed, StepCaptions, err)
	}

	if err := a.ffmpeg.BurnCaptions(ctx, mergedPath, subtitlePath, finalPath, req.Encode); err != nil {
		os.Remove(finalPath)
		return "", models.NewStepError(models.CodeAssemblyFailed, StepCaptions, err)
	}

	// Success: drop the intermediates, keep only the final artifact.
	// Failed runs above never reach this point, so partial runs keep
	// their intermediates for inspection.
	removeFiles(append(trimmed, concatPath, mergedPath, subtitlePath)...)

	log.Printf("[Assemble] Job %s: final video at %s", req.JobID, finalPath)
	return finalPath, nil
}

func removeFiles(paths ...string) {
	for _, path := range paths {
		if path != "" {
			os.Remove(path)
		}
	}
}
