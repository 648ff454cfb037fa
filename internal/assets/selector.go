package assets

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/driftline/narravid/internal/models"
	"github.com/samber/lo"
)

// Span is one planned slice of a background segment: the pipeline
// trims Ref to Length seconds. Length never exceeds the per-segment
// ceiling, even when the source is longer.
type Span struct {
	Ref    models.SegmentRef
	Length float64
}

// DurationProber measures a media file's duration. Satisfied by
// services.FFmpegService.
type DurationProber interface {
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}

// Selector picks ordered background segments from the read-only asset
// pool. Each aspect type (Horizontal/Vertical) has its own pool
// directory, discovered and shuffled once per process; afterwards
// segments are drawn round-robin so the order is stable and
// repeatable across jobs.
type Selector struct {
	horizontalDir string
	verticalDir   string
	maxSegmentLen float64
	allowedExts   []string
	probe         DurationProber

	mu    sync.Mutex
	pools map[string][]models.SegmentRef
}

func NewSelector(horizontalDir, verticalDir string, maxSegmentLen float64, allowedExts []string, probe DurationProber) *Selector {
	return &Selector{
		horizontalDir: horizontalDir,
		verticalDir:   verticalDir,
		maxSegmentLen: maxSegmentLen,
		allowedExts:   allowedExts,
		probe:         probe,
		pools:         make(map[string][]models.SegmentRef),
	}
}

// SelectSegments returns ordered spans whose total length covers
// targetDuration. The pool loops as many times as needed; an empty
// pool is an AssetPoolEmpty failure.
func (s *Selector) SelectSegments(ctx context.Context, targetDuration float64, videoType string) ([]Span, error) {
	if targetDuration <= 0 {
		return nil, fmt.Errorf("target duration must be positive, got %v", targetDuration)
	}

	pool, err := s.pool(ctx, videoType)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, models.NewPipelineError(models.CodeAssetPoolEmpty,
			fmt.Errorf("no usable %s background segments in pool", videoType))
	}

	var spans []Span
	var total float64
	for i := 0; total < targetDuration; i++ {
		ref := pool[i%len(pool)]
		length := ref.Duration
		if length > s.maxSegmentLen {
			length = s.maxSegmentLen
		}
		spans = append(spans, Span{Ref: ref, Length: length})
		total += length
	}

	log.Printf("[Assets] Selected %d segments covering %.2fs (target %.2fs, pool %d)",
		len(spans), total, targetDuration, len(pool))
	return spans, nil
}

// pool returns the discovered segment list for a video type, scanning
// and shuffling it on first use.
func (s *Selector) pool(ctx context.Context, videoType string) ([]models.SegmentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pool, ok := s.pools[videoType]; ok {
		return pool, nil
	}

	dir := s.horizontalDir
	if videoType == "Vertical" {
		dir = s.verticalDir
	}

	pool, err := s.scan(ctx, dir)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	s.pools[videoType] = pool
	return pool, nil
}

// scan enumerates the pool directory, keeping files with an allowed
// extension and a measurable positive duration. Unreadable files are
// logged and skipped; source files are never modified.
func (s *Selector) scan(ctx context.Context, dir string) ([]models.SegmentRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, models.NewPipelineError(models.CodeStorage,
			fmt.Errorf("failed to read asset pool %s: %w", dir, err))
	}

	candidates := lo.Filter(entries, func(e os.DirEntry, _ int) bool {
		return !e.IsDir() && s.allowedExt(e.Name())
	})

	var pool []models.SegmentRef
	for _, entry := range candidates {
		path := filepath.Join(dir, entry.Name())
		duration, err := s.probe.GetMediaDuration(ctx, path)
		if err != nil {
			log.Printf("[Assets] Skipping %s: %v", path, err)
			continue
		}
		if duration <= 0 {
			continue
		}
		pool = append(pool, models.SegmentRef{Path: path, Duration: duration})
	}
	return pool, nil
}

func (s *Selector) allowedExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return lo.Contains(s.allowedExts, ext)
}
