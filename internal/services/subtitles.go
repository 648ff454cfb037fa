package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/driftline/narravid/internal/models"
)

// ---------------------------------------------------------------------------
// ASS Caption Generator
//
// Renders word-level caption cues as ASS (Advanced SubStation Alpha)
// dialogue lines. Words are shown in small chunks with the currently
// spoken word highlighted by a thick colored border ("pill" effect).
//
// Visual style:
//   - Bold white uppercase text, centered near the bottom of the frame
//   - Dark outline on all words for readability on any background
//   - Active word: thick blue border
//   - Each chunk appears/disappears as a group; the highlight walks
//     through it word by word
// ---------------------------------------------------------------------------

// ASS colors are in &HAABBGGRR format (hex, note: BGR not RGB)
const (
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorBlue      = "&H00FF4500" // #0045FF in BGR
	assColorSemiBlack = "&H80000000" // 50% transparent black (shadow)
)

// Style sizing is derived from the canvas height so the same settings
// hold from 480p through 4K.
const (
	fontSizeRatio   = 0.055 // of canvas height
	marginVRatio    = 0.12
	outlineNormal   = 3
	outlineActive   = 9
	outlineHDFactor = 1080 // ratios above are tuned for a 1080-height canvas
)

// CaptionStyle configures one subtitle render.
type CaptionStyle struct {
	FontName      string
	CanvasWidth   int
	CanvasHeight  int
	WordsPerChunk int
}

// WriteASSCaptions creates an ASS subtitle file from word cues.
// Cues are grouped into chunks of style.WordsPerChunk; within a chunk
// each word gets its own dialogue line with that word highlighted.
func WriteASSCaptions(cues []models.CaptionCue, outputPath string, style CaptionStyle) error {
	if len(cues) == 0 {
		return fmt.Errorf("no cues to generate captions from")
	}
	if style.WordsPerChunk < 1 {
		style.WordsPerChunk = 4
	}

	scale := float64(style.CanvasHeight) / float64(outlineHDFactor)
	fontSize := int(float64(style.CanvasHeight) * fontSizeRatio)
	marginV := int(float64(style.CanvasHeight) * marginVRatio)
	outline := int(float64(outlineNormal)*scale + 0.5)
	if outline < 1 {
		outline = 1
	}
	activeOutline := int(float64(outlineActive)*scale + 0.5)
	if activeOutline <= outline {
		activeOutline = outline + 2
	}

	chunks := chunkCues(cues, style.WordsPerChunk)

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", style.CanvasWidth)
	fmt.Fprintf(&sb, "PlayResY: %d\n", style.CanvasHeight)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1\n",
		style.FontName, fontSize,
		assColorWhite,     // PrimaryColour (text)
		assColorWhite,     // SecondaryColour
		assColorBlack,     // OutlineColour
		assColorSemiBlack, // BackColour (shadow)
		outline,
		marginV,
	)
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, chunk := range chunks {
		for wordIdx, cue := range chunk {
			startTime := cue.Start
			var endTime float64
			if wordIdx < len(chunk)-1 {
				// End when the next word starts, for a seamless handoff.
				endTime = chunk[wordIdx+1].Start
			} else {
				endTime = cue.End
			}

			displayText := buildHighlightedChunkText(chunk, wordIdx, activeOutline)

			fmt.Fprintf(&sb,
				"Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(startTime),
				formatASSTime(endTime),
				displayText,
			)
		}
	}

	if err := os.WriteFile(outputPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write ASS caption file: %w", err)
	}
	return nil
}

// chunkCues groups cues into display chunks of the given size, also
// breaking at sentence boundaries (., !, ?) so chunks read naturally.
func chunkCues(cues []models.CaptionCue, chunkSize int) [][]models.CaptionCue {
	var chunks [][]models.CaptionCue
	var current []models.CaptionCue

	for _, cue := range cues {
		current = append(current, cue)

		isSentenceEnd := strings.ContainsAny(cue.Text, ".!?")
		if len(current) >= chunkSize || (isSentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// buildHighlightedChunkText builds the ASS-formatted text for a chunk
// where the word at activeIdx carries the thick colored border.
//
// Output example: "THE {\3c&H00FF4500&\bord9}HISTORY{\r} OF COFFEE"
func buildHighlightedChunkText(chunk []models.CaptionCue, activeIdx, activeOutline int) string {
	var parts []string

	for i, cue := range chunk {
		word := strings.ToUpper(strings.TrimSpace(cue.Text))
		if word == "" {
			continue
		}

		if i == activeIdx {
			// \3c sets outline color, \bord thickness, \r resets style.
			parts = append(parts, fmt.Sprintf(
				"{\\3c%s\\bord%d}%s{\\r}",
				assColorBlue, activeOutline, word,
			))
		} else {
			parts = append(parts, word)
		}
	}

	return strings.Join(parts, " ")
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
