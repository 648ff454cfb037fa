package api

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"github.com/driftline/narravid/internal/services"
)

// AudioToolkit is the slice of the ffmpeg service the audio-utility
// endpoints need.
type AudioToolkit interface {
	GetMediaDuration(ctx context.Context, path string) (float64, error)
	IsSilent(ctx context.Context, path string, threshold float64) (bool, error)
	NormalizeAudio(ctx context.Context, inputPath, outputPath string, set services.NormalizeSettings) error
}

// maxUploadBytes caps multipart memory buffering; larger uploads spill
// to temp files.
const maxUploadBytes = 32 << 20

// saveUpload extracts the "audioFile" part of a multipart request and
// writes it under the store path. The saved name is the md5 of the
// original filename, so repeated uploads of the same file overwrite
// rather than accumulate. The returned cleanup removes the saved copy.
func (h *Handler) saveUpload(r *http.Request) (path string, cleanup func(), errMsg string, status int) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", nil, "No audio file provided", http.StatusBadRequest
	}
	file, header, err := r.FormFile("audioFile")
	if err != nil {
		return "", nil, "No audio file provided", http.StatusBadRequest
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !lo.Contains(h.cfg.Audio.AllowedExtensions, ext) {
		return "", nil, fmt.Sprintf("File type %q is not allowed", ext), http.StatusBadRequest
	}

	sum := md5.Sum([]byte(header.Filename))
	path = filepath.Join(h.cfg.StorePath, hex.EncodeToString(sum[:])+ext)

	dst, err := os.Create(path)
	if err != nil {
		return "", nil, "Failed to save the uploaded file", http.StatusInternalServerError
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		return "", nil, "Failed to save the uploaded file", http.StatusInternalServerError
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", nil, "Failed to save the uploaded file", http.StatusInternalServerError
	}

	return path, func() { os.Remove(path) }, "", 0
}

// AudioDuration handles POST /api/v1/audio-duration
func (h *Handler) AudioDuration(w http.ResponseWriter, r *http.Request) {
	path, cleanup, errMsg, status := h.saveUpload(r)
	if errMsg != "" {
		respondError(w, status, errMsg)
		return
	}
	defer cleanup()

	duration, err := h.audio.GetMediaDuration(r.Context(), path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read audio duration")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"duration": math.Round(duration*100) / 100,
	})
}

// AudioSize handles POST /api/v1/audio-size
func (h *Handler) AudioSize(w http.ResponseWriter, r *http.Request) {
	path, cleanup, errMsg, status := h.saveUpload(r)
	if errMsg != "" {
		respondError(w, status, errMsg)
		return
	}
	defer cleanup()

	info, err := os.Stat(path)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read audio size")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"size": humanizeSize(info.Size()),
	})
}

// CheckSilence handles POST /api/v1/check-silence
func (h *Handler) CheckSilence(w http.ResponseWriter, r *http.Request) {
	path, cleanup, errMsg, status := h.saveUpload(r)
	if errMsg != "" {
		respondError(w, status, errMsg)
		return
	}
	defer cleanup()

	silent, err := h.audio.IsSilent(r.Context(), path, h.cfg.FFmpeg.SilenceThreshold)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to analyze audio")
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"isSilent": silent})
}

// NormalizeAudio handles POST /api/v1/normalize-audio. The normalized
// file stays in the store path and is served by Download.
func (h *Handler) NormalizeAudio(w http.ResponseWriter, r *http.Request) {
	path, cleanup, errMsg, status := h.saveUpload(r)
	if errMsg != "" {
		respondError(w, status, errMsg)
		return
	}
	defer cleanup()

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)
	outName := base + "_normalized" + ext
	outPath := filepath.Join(h.cfg.StorePath, outName)

	set := services.NormalizeSettings{
		Codec:      h.cfg.FFmpeg.AudioCodec,
		Format:     h.cfg.FFmpeg.AudioFormat,
		Bitrate:    h.cfg.FFmpeg.AudioBitrate,
		Filter:     h.cfg.FFmpeg.NormalizationFilter,
		SampleRate: h.cfg.FFmpeg.SampleRate,
		Channels:   h.cfg.FFmpeg.Channels,
	}
	if err := h.audio.NormalizeAudio(r.Context(), path, outPath, set); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to normalize audio")
		return
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		respondError(w, http.StatusInternalServerError, "Normalization produced no output")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"link":     "/api/v1/download/" + outName,
		"filename": outName,
	})
}

// Download handles GET /api/v1/download/{filename}, serving a file
// from the store path as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	// Base strips any path components, so the store path cannot be
	// escaped
	name := filepath.Base(chi.URLParam(r, "filename"))
	path := filepath.Join(h.cfg.StorePath, name)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		respondError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

// humanizeSize renders a byte count the way humans read file sizes.
func humanizeSize(n int64) string {
	const unit = 1024
	switch {
	case n < unit:
		return fmt.Sprintf("%d bytes", n)
	case n < unit*unit:
		return fmt.Sprintf("%.2f KB", float64(n)/unit)
	case n < unit*unit*unit:
		return fmt.Sprintf("%.2f MB", float64(n)/(unit*unit))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(unit*unit*unit))
	}
}
