package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/coursemedia/captionburn/pkg/models"
)

// FFmpeg wraps FFmpeg and FFprobe subprocess invocations
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpeg creates a new FFmpeg instance
func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// probeOutput mirrors the ffprobe JSON shape
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		BitRate   string `json:"bit_rate"`
	} `json:"streams"`
}

// Probe extracts duration, resolution and bitrate from a media file.
// Returns a ProbeError when the underlying tool cannot parse the file.
func (f *FFmpeg) Probe(ctx context.Context, inputPath string) (*models.VideoMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &ProbeError{Path: inputPath, Err: fmt.Errorf("%w, stderr: %s", err, stderr.String())}
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, &ProbeError{Path: inputPath, Err: fmt.Errorf("failed to parse ffprobe output: %w", err)}
	}

	meta := &models.VideoMetadata{}

	if duration, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		meta.Duration = duration
	}
	if size, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
		meta.Size = size
	}
	if bitrate, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
		meta.Bitrate = bitrate
	}

	for _, stream := range out.Streams {
		if stream.CodecType == "video" {
			meta.Width = stream.Width
			meta.Height = stream.Height
			if meta.Bitrate == 0 {
				if br, err := strconv.ParseInt(stream.BitRate, 10, 64); err == nil {
					meta.Bitrate = br
				}
			}
			break
		}
	}

	return meta, nil
}

// Cut extracts the [start, start+duration) range of the input into outputPath.
func (f *FFmpeg) Cut(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	args := []string{
		"-ss", fmt.Sprintf("%.3f", start),
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &TranscoderError{Op: "cut", Stderr: stderr.String(), Err: err}
	}

	return nil
}

// ExtractLeading copies the first duration seconds of the input into
// outputPath. Used for the silence-detection sample and for bounding
// oversized segment payloads.
func (f *FFmpeg) ExtractLeading(ctx context.Context, inputPath, outputPath string, duration float64) error {
	args := []string{
		"-i", inputPath,
		"-t", fmt.Sprintf("%.3f", duration),
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &TranscoderError{Op: "extract", Stderr: stderr.String(), Err: err}
	}

	return nil
}

var silenceEndRegex = regexp.MustCompile(`silence_end:\s*([\d.]+)`)

// DetectSilence runs a silencedetect pass over the input and returns the
// detected silence end times in seconds, in the order FFmpeg reported them.
func (f *FFmpeg) DetectSilence(ctx context.Context, inputPath string, noiseDB, minDuration float64) ([]float64, error) {
	args := []string{
		"-i", inputPath,
		"-af", fmt.Sprintf("silencedetect=noise=%.0fdB:d=%g", noiseDB, minDuration),
		"-f", "null",
		"-",
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	// silencedetect reports on stderr
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, &TranscoderError{Op: "silencedetect", Err: err}
	}

	var times []float64
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		times = append(times, parseSilenceLine(scanner.Text())...)
	}

	if err := cmd.Wait(); err != nil {
		return nil, &TranscoderError{Op: "silencedetect", Err: err}
	}

	return times, nil
}

// parseSilenceLine extracts silence_end timestamps from one line of
// silencedetect output.
func parseSilenceLine(line string) []float64 {
	var times []float64
	for _, match := range silenceEndRegex.FindAllStringSubmatch(line, -1) {
		if t, err := strconv.ParseFloat(match[1], 64); err == nil && t > 0 {
			times = append(times, t)
		}
	}
	return times
}

// PreprocessOptions holds options for the pre-captioning re-encode
type PreprocessOptions struct {
	MaxWidth       int
	MaxHeight      int
	TargetBitrate  string
	NormalizeAudio bool
}

// Preprocess re-encodes an oversized input to a bounded resolution and
// bitrate so the captioning payload stays manageable. Audio is loudness
// normalized when requested, otherwise copied verbatim.
func (f *FFmpeg) Preprocess(ctx context.Context, inputPath, outputPath string, opts PreprocessOptions) error {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = 1280
	}
	if opts.MaxHeight <= 0 {
		opts.MaxHeight = 720
	}
	if opts.TargetBitrate == "" {
		opts.TargetBitrate = "2500k"
	}

	meta, err := f.Probe(ctx, inputPath)
	if err != nil {
		return err
	}

	width, height := fitResolution(meta.Width, meta.Height, opts.MaxWidth, opts.MaxHeight)

	args := []string{"-i", inputPath}

	if width != meta.Width || height != meta.Height {
		args = append(args, "-s", fmt.Sprintf("%dx%d", width, height))
	}

	args = append(args, "-b:v", opts.TargetBitrate)

	if opts.NormalizeAudio {
		args = append(args, "-af", "loudnorm=I=-16:TP=-1.5:LRA=11")
	} else {
		args = append(args, "-c:a", "copy")
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-threads", "0",
		"-y",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &TranscoderError{Op: "preprocess", Stderr: stderr.String(), Err: err}
	}

	return nil
}

// fitResolution scales (width, height) down to fit within (maxW, maxH)
// preserving aspect ratio. Dimensions already within bounds are unchanged.
func fitResolution(width, height, maxW, maxH int) (int, int) {
	if width <= 0 || height <= 0 {
		return width, height
	}
	if width <= maxW && height <= maxH {
		return width, height
	}

	aspect := float64(width) / float64(height)

	var outW, outH int
	if width > height {
		outW = maxW
		outH = int(float64(outW)/aspect + 0.5)
		if outH > maxH {
			outH = maxH
			outW = int(float64(outH)*aspect + 0.5)
		}
	} else {
		outH = maxH
		outW = int(float64(outH)*aspect + 0.5)
		if outW > maxW {
			outW = maxW
			outH = int(float64(outW)/aspect + 0.5)
		}
	}

	// yuv420p requires even dimensions
	outW -= outW % 2
	outH -= outH % 2

	return outW, outH
}

// FileSizeMB returns the size of a file in whole megabytes.
func FileSizeMB(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size() / (1024 * 1024), nil
}
