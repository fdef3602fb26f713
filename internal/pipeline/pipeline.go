package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/caption"
	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/media"
	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/internal/render"
	"github.com/coursemedia/captionburn/internal/subtitle"
	"github.com/coursemedia/captionburn/internal/tracing"
	"github.com/coursemedia/captionburn/pkg/models"
)

// Pipeline stage names, used for logging, metrics, and trace spans.
const (
	StagePreprocess  = "preprocess"
	StageSegment     = "segment"
	StageCaption     = "caption"
	StagePostProcess = "postprocess"
	StageWrite       = "write"
	StageBurn        = "burn"
)

// progressInterval throttles progress callbacks so a chatty stage cannot
// flood the sink.
const progressInterval = 200 * time.Millisecond

// Captioner generates captions for a base64 video payload.
type Captioner interface {
	GenerateWithRetry(ctx context.Context, videoBase64 string, opts caption.RequestOptions) ([]models.Caption, error)
	FallbackModel() string
}

// MediaProcessor covers the ffmpeg operations the pipeline drives directly.
type MediaProcessor interface {
	Probe(ctx context.Context, path string) (*models.VideoMetadata, error)
	Preprocess(ctx context.Context, inputPath, outputPath string, opts media.PreprocessOptions) error
	ExtractLeading(ctx context.Context, inputPath, outputPath string, duration float64) error
}

// Segmenter splits a video into caption-sized chunks.
type Segmenter interface {
	SegmentSmart(ctx context.Context, videoPath string, maxChunkSeconds float64, outDir string, maxDetectionWindow float64) (*media.SegmentResult, error)
}

// SubtitleWriter renders captions to a subtitle file.
type SubtitleWriter interface {
	Write(captions []models.Caption, outputPath string) error
}

// Burner hard-burns a subtitle file into a video.
type Burner interface {
	Burn(ctx context.Context, videoPath, subtitlePath, outputPath string, style subtitle.Style, opts render.BurnOptions) error
}

// RunOptions configures one pipeline run.
type RunOptions struct {
	ContentType string // lecture, tutorial, ...
	StyleName   string // subtitle style preset; defaults to the content type

	// StyleOverride is a partial style merged over the default preset.
	// When set it wins over StyleName.
	StyleOverride *subtitle.Style

	// OutputDir receives the subtitle file and burned video. Defaults to
	// the input video's directory.
	OutputDir string
}

// Pipeline orchestrates probe, segmentation, captioning, post-processing,
// subtitle writing, and burn-in for one video at a time.
type Pipeline struct {
	cfg       config.PipelineConfig
	processor MediaProcessor
	segmenter Segmenter
	captioner Captioner
	writer    SubtitleWriter
	burner    Burner
	logger    zerolog.Logger

	// injectable for tests
	encode      func(path string) (string, error)
	memoryOK    func() bool
	memoryWait  time.Duration
	concurrency int
}

// New creates a pipeline. The concurrency for segment captioning is derived
// from the CPU count, capped by cfg.MaxConcurrentSegments.
func New(cfg config.PipelineConfig, processor MediaProcessor, segmenter Segmenter, captioner Captioner, writer SubtitleWriter, burner Burner, logger zerolog.Logger) *Pipeline {
	maxConcurrent := cfg.MaxConcurrentSegments
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	concurrency := runtime.NumCPU() / 2
	if concurrency > maxConcurrent {
		concurrency = maxConcurrent
	}
	if concurrency < 1 {
		concurrency = 1
	}

	threshold := cfg.MemoryThreshold
	if threshold <= 0 {
		threshold = 0.7
	}

	return &Pipeline{
		cfg:         cfg,
		processor:   processor,
		segmenter:   segmenter,
		captioner:   captioner,
		writer:      writer,
		burner:      burner,
		logger:      logger,
		encode: func(path string) (string, error) {
			return media.ToTransportPayload(path, cfg.StreamEncodeThreshold)
		},
		memoryOK:    func() bool { return heapUsage() < threshold },
		memoryWait:  5 * time.Second,
		concurrency: concurrency,
	}
}

func heapUsage() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys == 0 {
		return 0
	}
	return float64(m.HeapAlloc) / float64(m.HeapSys)
}

// Process runs the full pipeline on videoPath. Intermediate files live in a
// per-run temp directory, reclaimed before Process returns whether the run
// succeeds or fails. The subtitle file and burned video are moved to
// opts.OutputDir before the result is returned.
func (p *Pipeline) Process(ctx context.Context, videoPath string, opts RunOptions, onProgress ProgressFunc) (*models.RunResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()

	baseDir := p.cfg.TempDir
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "captionburn")
	}
	tempDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if cleanupErr := os.RemoveAll(tempDir); cleanupErr != nil {
			logger.Warn().Err(cleanupErr).Msg("Temp dir cleanup failed")
		}
	}()

	report := Throttle(onProgress, progressInterval)

	metrics.RecordRunStarted(opts.ContentType)

	result, err := p.run(ctx, runID, videoPath, tempDir, opts, report, logger)
	if err == nil {
		err = p.collectOutputs(videoPath, opts.OutputDir, result)
	}
	if err != nil {
		metrics.RecordRunCompleted("failed")
		return nil, err
	}

	metrics.RecordRunCompleted("completed")
	return result, nil
}

// collectOutputs moves the run outputs out of the temp directory so it can
// be reclaimed no matter what the caller does with the result.
func (p *Pipeline) collectOutputs(videoPath, outDir string, result *models.RunResult) error {
	if outDir == "" {
		outDir = filepath.Dir(videoPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	subtitleDest := filepath.Join(outDir, filepath.Base(result.SubtitlePath))
	if err := moveFile(result.SubtitlePath, subtitleDest); err != nil {
		return fmt.Errorf("collect subtitle file: %w", err)
	}
	result.SubtitlePath = subtitleDest

	videoDest := filepath.Join(outDir, filepath.Base(result.OutputVideoPath))
	if err := moveFile(result.OutputVideoPath, videoDest); err != nil {
		return fmt.Errorf("collect output video: %w", err)
	}
	result.OutputVideoPath = videoDest
	return nil
}

// moveFile renames when possible and falls back to copying across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// preprocessOptions resolves the re-encode target from config, with named
// quality and resolution tiers overriding the explicit values.
func (p *Pipeline) preprocessOptions() media.PreprocessOptions {
	opts := media.PreprocessOptions{
		MaxWidth:       p.cfg.MaxWidth,
		MaxHeight:      p.cfg.MaxHeight,
		TargetBitrate:  p.cfg.TargetBitrate,
		NormalizeAudio: true,
	}
	if p.cfg.PreprocessResolution != "" {
		res := media.ResolutionByName(p.cfg.PreprocessResolution)
		opts.MaxWidth = res.Width
		opts.MaxHeight = res.Height
	}
	if p.cfg.PreprocessQuality != "" {
		opts.TargetBitrate = media.QualityByName(p.cfg.PreprocessQuality).Bitrate
	}
	return opts
}

func (p *Pipeline) run(ctx context.Context, runID, videoPath, tempDir string, opts RunOptions, report ProgressFunc, logger zerolog.Logger) (*models.RunResult, error) {
	sizeMB, err := media.FileSizeMB(videoPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}
	logger.Info().Int64("size_mb", sizeMB).Str("path", videoPath).Msg("Pipeline run started")

	processedPath := videoPath
	if p.cfg.PreprocessThresholdMB > 0 && sizeMB > p.cfg.PreprocessThresholdMB {
		report(5, "Large video, preprocessing...")

		processedPath = filepath.Join(tempDir, "preprocessed.mp4")
		err := p.stage(ctx, runID, StagePreprocess, func(ctx context.Context) error {
			return p.processor.Preprocess(ctx, videoPath, processedPath, p.preprocessOptions())
		})
		if err != nil {
			return nil, fmt.Errorf("preprocess: %w", err)
		}

		if newSize, err := media.FileSizeMB(processedPath); err == nil {
			logger.Info().Int64("size_mb", newSize).Msg("Preprocessing complete")
		}
		report(10, "Preprocessing complete, analyzing video...")
	} else {
		report(5, "Analyzing video...")
	}

	meta, err := p.processor.Probe(ctx, processedPath)
	if err != nil {
		return nil, err
	}
	duration := meta.Duration

	subtitlePath := filepath.Join(tempDir, "subtitles.srt")
	outputVideoPath := filepath.Join(tempDir, "output_"+filepath.Base(videoPath))

	var captions []models.Caption
	if duration <= p.cfg.ShortVideoSeconds {
		captions = p.captionDirect(ctx, runID, processedPath, duration, opts, report, logger)
	} else {
		captions = p.captionSegmented(ctx, runID, processedPath, tempDir, opts, report, logger)
	}

	report(80, "Post-processing captions...")
	err = p.stage(ctx, runID, StagePostProcess, func(ctx context.Context) error {
		captions = caption.PostProcess(captions)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.CaptionsGenerated.Observe(float64(len(captions)))

	report(85, "Writing subtitle file...")
	err = p.stage(ctx, runID, StageWrite, func(ctx context.Context) error {
		return p.writer.Write(captions, subtitlePath)
	})
	if err != nil {
		return nil, err
	}

	report(90, "Burning subtitles into video...")
	styleName := opts.StyleName
	if styleName == "" {
		styleName = opts.ContentType
	}
	style := subtitle.ResolveStyle(styleName)
	if opts.StyleOverride != nil {
		style = subtitle.ResolveStyleOverride(*opts.StyleOverride)
	}

	err = p.stage(ctx, runID, StageBurn, func(ctx context.Context) error {
		return p.burner.Burn(ctx, processedPath, subtitlePath, outputVideoPath, style, render.BurnOptions{
			HardwareAcceleration: p.cfg.EnableHWAccel,
			PreserveQuality:      p.cfg.PreserveQuality,
			ShowProgress:         true,
			OnProgress: func(percent int) {
				report(90+float64(percent)*0.08, fmt.Sprintf("Burning subtitles: %d%%", percent))
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("burn: %w", err)
	}

	report(100, "Video and captions complete")
	logger.Info().Int("captions", len(captions)).Msg("Pipeline run complete")

	return &models.RunResult{
		Captions:        captions,
		SubtitlePath:    subtitlePath,
		OutputVideoPath: outputVideoPath,
	}, nil
}

// captionDirect handles short videos with a single captioning call. A
// failed call degrades to filename-derived captions instead of failing the
// run.
func (p *Pipeline) captionDirect(ctx context.Context, runID, videoPath string, duration float64, opts RunOptions, report ProgressFunc, logger zerolog.Logger) []models.Caption {
	report(10, "Short video, processing directly...")

	var captions []models.Caption
	err := p.stage(ctx, runID, StageCaption, func(ctx context.Context) error {
		report(20, "Encoding video...")
		payload, err := p.encode(videoPath)
		if err != nil {
			return err
		}

		report(40, "Generating captions...")
		captions, err = p.captioner.GenerateWithRetry(ctx, payload, caption.RequestOptions{
			ContentType: opts.ContentType,
			MimeType:    "video/mp4",
		})
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Direct captioning failed, using filename fallback")
		metrics.RecordSegmentFallback("short_video")
		report(40, "Captioning failed, using fallback...")
		return caption.ShortVideoFallback(videoPath, duration)
	}

	report(70, "Captions received")
	return captions
}

// captionSegmented handles long videos: smart segmentation followed by
// parallel per-segment captioning. Segmentation failure degrades to
// filename-derived captions.
func (p *Pipeline) captionSegmented(ctx context.Context, runID, videoPath, tempDir string, opts RunOptions, report ProgressFunc, logger zerolog.Logger) []models.Caption {
	report(10, "Long video, segmenting...")

	segmentsDir := filepath.Join(tempDir, "segments")
	if err := os.MkdirAll(segmentsDir, 0o755); err != nil {
		logger.Error().Err(err).Msg("Could not create segments dir, using fallback")
		return p.segmentationFallback(ctx, videoPath, logger)
	}

	var result *media.SegmentResult
	err := p.stage(ctx, runID, StageSegment, func(ctx context.Context) error {
		var err error
		report(20, "Segmenting video at silence boundaries...")
		result, err = p.segmenter.SegmentSmart(ctx, videoPath, p.cfg.ChunkSeconds, segmentsDir, p.cfg.MaxDetectionWindow)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Segmentation failed, using filename fallback")
		return p.segmentationFallback(ctx, videoPath, logger)
	}

	report(30, fmt.Sprintf("Video split into %d segments", len(result.Segments)))
	metrics.SegmentsPerRun.Observe(float64(len(result.Segments)))

	var captions []models.Caption
	_ = p.stage(ctx, runID, StageCaption, func(ctx context.Context) error {
		report(35, "Captioning segments...")
		captions = p.captionSegments(ctx, result.Segments, result.TotalDuration, opts, func(percent float64, message string) {
			report(35+percent*0.4, message)
		}, logger)
		return nil
	})
	return captions
}

func (p *Pipeline) segmentationFallback(ctx context.Context, videoPath string, logger zerolog.Logger) []models.Caption {
	metrics.RecordSegmentFallback("segmentation")
	duration := 0.0
	if meta, err := p.processor.Probe(ctx, videoPath); err == nil {
		duration = meta.Duration
	} else {
		logger.Warn().Err(err).Msg("Probe failed during fallback")
	}
	return caption.ShortVideoFallback(videoPath, duration)
}

// captionSegments captions segments in batches of p.concurrency, pausing
// between batches when heap usage runs high. Every segment produces
// captions: model failure falls back first to the cheaper model, then to
// placeholders.
func (p *Pipeline) captionSegments(ctx context.Context, segments []models.Segment, totalDuration float64, opts RunOptions, report ProgressFunc, logger zerolog.Logger) []models.Caption {
	if len(segments) == 0 {
		return nil
	}

	total := len(segments)
	all := make([]models.Caption, 0, total*16)

	var mu sync.Mutex
	processed := 0

	for batchStart := 0; batchStart < total; batchStart += p.concurrency {
		batchEnd := batchStart + p.concurrency
		if batchEnd > total {
			batchEnd = total
		}

		report(float64(processed)/float64(total)*100,
			fmt.Sprintf("Processing segment batch %d/%d...", batchStart/p.concurrency+1, (total+p.concurrency-1)/p.concurrency))

		if !p.memoryOK() {
			logger.Info().Msg("Memory usage high, waiting before next batch")
			select {
			case <-time.After(p.memoryWait):
			case <-ctx.Done():
				return all
			}
			runtime.GC()
		}

		var wg sync.WaitGroup
		for _, seg := range segments[batchStart:batchEnd] {
			wg.Add(1)
			go func(seg models.Segment) {
				defer wg.Done()

				segCaptions := p.captionOneSegment(ctx, seg, total, totalDuration, opts, logger)

				mu.Lock()
				all = append(all, segCaptions...)
				processed++
				report(float64(processed)/float64(total)*100,
					fmt.Sprintf("Processed %d/%d segments", processed, total))
				mu.Unlock()
			}(seg)
		}
		wg.Wait()
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Start < all[j].Start })
	return all
}

func (p *Pipeline) captionOneSegment(ctx context.Context, seg models.Segment, total int, totalDuration float64, opts RunOptions, logger zerolog.Logger) []models.Caption {
	segLogger := logger.With().Int("segment", seg.Index).Logger()
	segLogger.Info().Msgf("Processing segment %d/%d", seg.Index+1, total)

	payload, err := p.segmentPayload(ctx, seg)
	if err != nil {
		segLogger.Error().Err(err).Msg("Could not encode segment, using placeholders")
		metrics.RecordSegmentFallback("placeholder")
		return caption.PlaceholderSegmentCaptions(seg)
	}

	reqOpts := caption.RequestOptions{
		ContentType: opts.ContentType,
		MimeType:    "video/mp4",
		SegmentInfo: &models.SegmentInfo{
			Index:         seg.Index,
			StartTime:     seg.StartTime,
			Duration:      seg.Duration,
			TotalDuration: totalDuration,
		},
	}

	captions, err := p.captioner.GenerateWithRetry(ctx, payload, reqOpts)
	if err != nil {
		segLogger.Warn().Err(err).Str("fallback_model", p.captioner.FallbackModel()).Msg("Retrying segment with fallback model")
		metrics.RecordSegmentFallback("model")

		reqOpts.Model = p.captioner.FallbackModel()
		captions, err = p.captioner.GenerateWithRetry(ctx, payload, reqOpts)
		if err != nil {
			segLogger.Error().Err(err).Msg("Fallback model also failed, using placeholders")
			metrics.RecordSegmentFallback("placeholder")
			return caption.PlaceholderSegmentCaptions(seg)
		}
	}

	// Model timestamps are segment-relative
	for i := range captions {
		captions[i].Start += seg.StartTime
		captions[i].End += seg.StartTime
	}
	return captions
}

// segmentPayload encodes a segment for transport. Oversized segments get
// only a leading extract captioned to bound the request body.
func (p *Pipeline) segmentPayload(ctx context.Context, seg models.Segment) (string, error) {
	sizeMB, err := media.FileSizeMB(seg.Path)
	if err != nil {
		return "", err
	}

	if p.cfg.SegmentPayloadMaxMB > 0 && sizeMB > p.cfg.SegmentPayloadMaxMB {
		extractPath := seg.Path + ".lead.mp4"
		if err := p.processor.ExtractLeading(ctx, seg.Path, extractPath, math.Min(seg.Duration, 300)); err != nil {
			return "", err
		}
		defer os.Remove(extractPath)
		return p.encode(extractPath)
	}

	return p.encode(seg.Path)
}

// stage wraps fn with a trace span and a duration metric.
func (p *Pipeline) stage(ctx context.Context, runID, name string, fn func(context.Context) error) error {
	span, ctx := tracing.StartStageSpan(ctx, name, runID)
	start := time.Now()

	err := fn(ctx)

	metrics.RecordStageDuration(name, time.Since(start).Seconds())
	tracing.FinishSpan(span, err)
	return err
}
