package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/coursemedia/captionburn/pkg/models"
)

// SegmenterOptions holds segmentation tuning parameters. The defaults are
// empirical values carried over from production use.
type SegmenterOptions struct {
	SilenceNoiseDB      float64 // silencedetect noise floor, dB
	SilenceMinDuration  float64 // minimum silence length, seconds
	BreakpointThreshold float64 // fraction of chunk length a segment must reach before a silence cut
	DirectSegmentCutoff float64 // videos longer than this skip silence analysis entirely
	MaxConcurrentCuts   int     // simultaneous ffmpeg cut processes in the smart path
}

// DefaultSegmenterOptions returns the production tuning values.
func DefaultSegmenterOptions() SegmenterOptions {
	return SegmenterOptions{
		SilenceNoiseDB:      -30,
		SilenceMinDuration:  1,
		BreakpointThreshold: 0.9,
		DirectSegmentCutoff: 7200,
		MaxConcurrentCuts:   2,
	}
}

// Segmenter splits a video into bounded-duration chunks.
type Segmenter struct {
	ffmpeg *FFmpeg
	opts   SegmenterOptions
}

// NewSegmenter creates a segmenter. Zero-valued option fields are replaced
// with defaults.
func NewSegmenter(ffmpeg *FFmpeg, opts SegmenterOptions) *Segmenter {
	def := DefaultSegmenterOptions()
	if opts.SilenceNoiseDB == 0 {
		opts.SilenceNoiseDB = def.SilenceNoiseDB
	}
	if opts.SilenceMinDuration == 0 {
		opts.SilenceMinDuration = def.SilenceMinDuration
	}
	if opts.BreakpointThreshold == 0 {
		opts.BreakpointThreshold = def.BreakpointThreshold
	}
	if opts.DirectSegmentCutoff == 0 {
		opts.DirectSegmentCutoff = def.DirectSegmentCutoff
	}
	if opts.MaxConcurrentCuts <= 0 {
		opts.MaxConcurrentCuts = def.MaxConcurrentCuts
	}
	return &Segmenter{ffmpeg: ffmpeg, opts: opts}
}

// SegmentResult holds the produced segments sorted by index together with
// the probed total duration.
type SegmentResult struct {
	Segments      []models.Segment
	TotalDuration float64
}

// SegmentFixed splits the video into ceil(duration/chunkSeconds) equal-length
// segments (the last truncated to the remaining duration). Cuts run
// concurrently; the returned segments are sorted by index.
func (s *Segmenter) SegmentFixed(ctx context.Context, videoPath string, chunkSeconds float64, outDir string) (*SegmentResult, error) {
	meta, err := s.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	duration := meta.Duration

	numSegments := int(math.Ceil(duration / chunkSeconds))
	if numSegments < 1 {
		numSegments = 1
	}

	segments := make([]models.Segment, numSegments)
	errs := make([]error, numSegments)

	var wg sync.WaitGroup
	for i := 0; i < numSegments; i++ {
		startTime := float64(i) * chunkSeconds
		actualDuration := math.Min(chunkSeconds, duration-startTime)
		outputPath := filepath.Join(outDir, fmt.Sprintf("segment_%d.mp4", i))

		wg.Add(1)
		go func(i int, startTime, actualDuration float64, outputPath string) {
			defer wg.Done()
			if err := s.ffmpeg.Cut(ctx, videoPath, outputPath, startTime, actualDuration); err != nil {
				errs[i] = err
				return
			}
			segments[i] = models.Segment{
				Index:     i,
				Path:      outputPath,
				StartTime: startTime,
				Duration:  actualDuration,
			}
		}(i, startTime, actualDuration, outputPath)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("segment cut failed: %w", err)
		}
	}

	return &SegmentResult{Segments: segments, TotalDuration: duration}, nil
}

// SegmentSmart splits the video at silence boundaries where possible.
// Silence analysis is limited to the first maxDetectionWindow seconds; very
// long videos (past DirectSegmentCutoff) go straight to fixed segmentation
// since silence analysis on hours of audio is not cost-effective. Any
// failure in the smart path falls back to SegmentFixed entirely.
func (s *Segmenter) SegmentSmart(ctx context.Context, videoPath string, maxChunkSeconds float64, outDir string, maxDetectionWindow float64) (*SegmentResult, error) {
	meta, err := s.ffmpeg.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	duration := meta.Duration

	if duration > s.opts.DirectSegmentCutoff {
		log.Info().Float64("duration", duration).Msg("Video too long for silence analysis, using fixed segmentation")
		return s.SegmentFixed(ctx, videoPath, maxChunkSeconds, outDir)
	}

	result, err := s.segmentAtSilence(ctx, videoPath, duration, maxChunkSeconds, outDir, maxDetectionWindow)
	if err != nil {
		log.Warn().Err(err).Msg("Smart segmentation failed, falling back to fixed segmentation")
		return s.SegmentFixed(ctx, videoPath, maxChunkSeconds, outDir)
	}
	return result, nil
}

func (s *Segmenter) segmentAtSilence(ctx context.Context, videoPath string, duration, maxChunkSeconds float64, outDir string, maxDetectionWindow float64) (*SegmentResult, error) {
	detectionWindow := math.Min(duration, maxDetectionWindow)

	// Silence detection runs on a leading extract, not the full video.
	samplePath := filepath.Join(outDir, "silence_sample.mp4")
	if err := s.ffmpeg.ExtractLeading(ctx, videoPath, samplePath, detectionWindow); err != nil {
		return nil, err
	}
	defer os.Remove(samplePath)

	silenceTimes, err := s.ffmpeg.DetectSilence(ctx, samplePath, s.opts.SilenceNoiseDB, s.opts.SilenceMinDuration)
	if err != nil {
		return nil, err
	}

	log.Debug().Int("count", len(silenceTimes)).Msg("Detected candidate segment break points")

	breakpoints := selectBreakpoints(silenceTimes, duration, maxChunkSeconds, s.opts.BreakpointThreshold, detectionWindow)

	segments, err := s.cutBreakpoints(ctx, videoPath, outDir, breakpoints)
	if err != nil {
		return nil, err
	}

	return &SegmentResult{Segments: segments, TotalDuration: duration}, nil
}

// selectBreakpoints picks cut points from candidate silence times. Selection
// is strictly greedy left-to-right over the ascending-sorted candidates: a
// candidate is accepted only when it is at least threshold*maxChunk past the
// current segment start and strictly before the total duration, so no
// pathologically short segment is created at a silence point. Past the
// detection window, fixed-interval breakpoints extend the plan, and the
// total duration is always the final breakpoint.
func selectBreakpoints(silenceTimes []float64, duration, maxChunk, threshold, detectionWindow float64) []float64 {
	sorted := make([]float64, len(silenceTimes))
	copy(sorted, silenceTimes)
	sort.Float64s(sorted)

	breakpoints := []float64{0}
	currentStart := 0.0

	for _, t := range sorted {
		if t-currentStart >= maxChunk*threshold && t < duration {
			breakpoints = append(breakpoints, t)
			currentStart = t
		}
	}

	if detectionWindow < duration {
		current := breakpoints[len(breakpoints)-1]
		for current < duration {
			current += maxChunk
			if current < duration {
				breakpoints = append(breakpoints, current)
			}
		}
	}

	if breakpoints[len(breakpoints)-1] < duration {
		breakpoints = append(breakpoints, duration)
	}

	return breakpoints
}

// cutBreakpoints cuts one segment per adjacent breakpoint pair with bounded
// concurrency to limit simultaneous transcoder processes.
func (s *Segmenter) cutBreakpoints(ctx context.Context, videoPath, outDir string, breakpoints []float64) ([]models.Segment, error) {
	count := len(breakpoints) - 1
	if count < 1 {
		return nil, fmt.Errorf("no segments to cut")
	}

	segments := make([]models.Segment, count)
	errs := make([]error, count)
	sem := make(chan struct{}, s.opts.MaxConcurrentCuts)

	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		startTime := breakpoints[i]
		segDuration := breakpoints[i+1] - breakpoints[i]
		outputPath := filepath.Join(outDir, fmt.Sprintf("segment_%d.mp4", i))

		wg.Add(1)
		go func(i int, startTime, segDuration float64, outputPath string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.ffmpeg.Cut(ctx, videoPath, outputPath, startTime, segDuration); err != nil {
				errs[i] = err
				return
			}
			segments[i] = models.Segment{
				Index:     i,
				Path:      outputPath,
				StartTime: startTime,
				Duration:  segDuration,
			}
		}(i, startTime, segDuration, outputPath)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return segments, nil
}
