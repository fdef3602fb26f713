package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/media"
	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/internal/subtitle"
)

// BurnOptions controls a subtitle burn pass.
type BurnOptions struct {
	HardwareAcceleration bool
	PreserveQuality      bool
	ShowProgress         bool
	OnProgress           func(percent int)
}

// Burner hard-burns subtitle files into video using the ffmpeg subtitles
// filter.
type Burner struct {
	ffmpegPath string
	ffmpeg     *media.FFmpeg
	detector   *media.HWAccelDetector
	logger     zerolog.Logger
}

// NewBurner creates a burner around the given ffmpeg wrapper.
func NewBurner(ffmpegPath string, ffmpeg *media.FFmpeg, detector *media.HWAccelDetector, logger zerolog.Logger) *Burner {
	return &Burner{
		ffmpegPath: ffmpegPath,
		ffmpeg:     ffmpeg,
		detector:   detector,
		logger:     logger,
	}
}

// Burn renders subtitlePath onto videoPath, writing outputPath. When the
// subtitles filter chokes on the subtitle path (Windows drive letters and
// filter metacharacters are a known hazard), the file is copied to a safe
// temp name and the burn is retried exactly once.
func (b *Burner) Burn(ctx context.Context, videoPath, subtitlePath, outputPath string, style subtitle.Style, opts BurnOptions) error {
	err := b.run(ctx, videoPath, subtitlePath, outputPath, style, opts)
	if err == nil {
		return nil
	}

	if !isSubtitlePathError(err) {
		return err
	}

	b.logger.Warn().Err(err).Msg("Burn failed on subtitle path, retrying with escaped temp copy")
	metrics.BurnRetriesTotal.Inc()

	safePath := filepath.Join(os.TempDir(), fmt.Sprintf("captionburn_%s.srt", uuid.NewString()))
	if copyErr := copyFile(subtitlePath, safePath); copyErr != nil {
		return fmt.Errorf("copy subtitle for retry: %w", copyErr)
	}
	defer os.Remove(safePath)

	return b.run(ctx, videoPath, safePath, outputPath, style, opts)
}

func (b *Burner) run(ctx context.Context, videoPath, subtitlePath, outputPath string, style subtitle.Style, opts BurnOptions) error {
	mode := b.detector.Detect(ctx, opts.HardwareAcceleration)

	args := []string{"-y"}
	if !mode.Software() {
		args = append(args, "-hwaccel", mode.HWAccel)
	}
	args = append(args, "-threads", "0", "-i", videoPath)

	filter := fmt.Sprintf("subtitles=%s:force_style='%s'", escapeFilterPath(subtitlePath), style.ForceStyleString())
	args = append(args, "-vf", filter)

	if !mode.Software() {
		args = append(args, "-c:v", mode.VideoCodec)
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "fast")
	}

	if opts.PreserveQuality {
		args = append(args, "-crf", "18")
	} else {
		args = append(args, "-crf", "23")
	}

	args = append(args, "-c:a", "copy")

	if opts.ShowProgress && opts.OnProgress != nil {
		args = append(args, "-progress", "pipe:1", "-nostats")
	}

	args = append(args, outputPath)

	b.logger.Debug().Strs("args", args).Msg("Starting subtitle burn")

	cmd := exec.CommandContext(ctx, b.ffmpegPath, args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	if opts.ShowProgress && opts.OnProgress != nil {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("progress pipe: %w", err)
		}

		duration := b.probeDuration(ctx, videoPath)

		if err := cmd.Start(); err != nil {
			return &media.TranscoderError{Op: "burn", Err: err}
		}
		b.reportProgress(stdout, duration, opts.OnProgress)

		if err := cmd.Wait(); err != nil {
			return &media.TranscoderError{Op: "burn", Stderr: stderr.String(), Err: err}
		}
		return nil
	}

	if err := cmd.Run(); err != nil {
		return &media.TranscoderError{Op: "burn", Stderr: stderr.String(), Err: err}
	}
	return nil
}

func (b *Burner) probeDuration(ctx context.Context, videoPath string) float64 {
	meta, err := b.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Could not probe duration for burn progress")
		return 0
	}
	return meta.Duration
}

// reportProgress parses ffmpeg -progress key=value output and maps the
// encode position to a 0-100 percentage.
func (b *Burner) reportProgress(r io.Reader, duration float64, onProgress func(int)) {
	if duration <= 0 {
		io.Copy(io.Discard, r)
		return
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		value, ok := strings.CutPrefix(line, "out_time_ms=")
		if !ok {
			continue
		}
		us, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		percent := int(us / 1e6 / duration * 100)
		if percent > 100 {
			percent = 100
		}
		onProgress(percent)
	}
}

// isSubtitlePathError reports whether a burn failure looks like the
// subtitles filter failing to open the subtitle file rather than a general
// encode error.
func isSubtitlePathError(err error) bool {
	var te *media.TranscoderError
	if !errors.As(err, &te) {
		return false
	}
	stderr := strings.ToLower(te.Stderr)
	return strings.Contains(stderr, "no such file") || strings.Contains(stderr, "unable to open") ||
		strings.Contains(stderr, "error initializing filter 'subtitles'")
}

// filterEscaper escapes the characters the ffmpeg filter parser treats
// specially inside a filename argument.
var filterEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, `\'`,
	`[`, `\[`,
	`]`, `\]`,
	`,`, `\,`,
	`;`, `\;`,
)

func escapeFilterPath(path string) string {
	return filterEscaper.Replace(path)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
