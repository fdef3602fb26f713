package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/caption"
	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/logging"
	"github.com/coursemedia/captionburn/internal/media"
	"github.com/coursemedia/captionburn/internal/metrics"
	"github.com/coursemedia/captionburn/internal/pipeline"
	"github.com/coursemedia/captionburn/internal/progress"
	"github.com/coursemedia/captionburn/internal/queue"
	"github.com/coursemedia/captionburn/internal/render"
	"github.com/coursemedia/captionburn/internal/storage"
	"github.com/coursemedia/captionburn/internal/subtitle"
	"github.com/coursemedia/captionburn/internal/tracing"
	"github.com/coursemedia/captionburn/internal/webhook"
	"github.com/coursemedia/captionburn/pkg/models"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := logger.Zerolog()

	workerID := workerIdentity()
	zlog = zlog.With().Str("worker_id", workerID).Logger()

	if cfg.Tracing.Enabled {
		_, closer, err := tracing.InitTracer("captionburn-worker", cfg.Tracing.Endpoint)
		if err != nil {
			zlog.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			defer closer.Close()
		}
	}

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				zlog.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	// Initialize storage
	stor, err := storage.New(cfg.Storage)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to connect to queue")
	}
	defer q.Close()

	if err := q.SetupDeadLetterQueue(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to set up dead letter queue")
	}

	// Progress events go out over Redis pub/sub
	var sink progress.Sink
	redisSink, err := progress.NewRedisSink(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zlog.Warn().Err(err).Msg("Redis unavailable, progress events disabled")
		sink = progress.NopSink{}
	} else {
		sink = redisSink
	}
	defer sink.Close()

	p := buildPipeline(cfg, zlog)
	notifier := webhook.NewService(cfg.Webhooks, zlog)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		zlog.Info().Msg("Shutting down worker gracefully")
		cancel()
	}()

	worker := &worker{
		id:       workerID,
		cfg:      cfg,
		storage:  stor,
		queue:    q,
		sink:     sink,
		pipeline: p,
		notifier: notifier,
		logger:   zlog,
	}

	// Start consuming jobs
	zlog.Info().Msg("Worker started, waiting for jobs")
	if err := q.ConsumeJobs(ctx, worker.handle); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to consume jobs")
	}

	// Wait for shutdown
	<-ctx.Done()
	zlog.Info().Msg("Worker stopped")
}

// buildPipeline wires the media, caption, subtitle and render components
// into a run pipeline.
func buildPipeline(cfg *config.Config, zlog zerolog.Logger) *pipeline.Pipeline {
	ffmpeg := media.NewFFmpeg(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
	detector := media.NewHWAccelDetector()

	segmenter := media.NewSegmenter(ffmpeg, media.SegmenterOptions{
		SilenceNoiseDB:      cfg.Pipeline.SilenceNoiseDB,
		SilenceMinDuration:  cfg.Pipeline.SilenceMinDuration,
		BreakpointThreshold: cfg.Pipeline.BreakpointThreshold,
		MaxConcurrentCuts:   cfg.Pipeline.MaxConcurrentCuts,
		DirectSegmentCutoff: cfg.Pipeline.DirectSegmentCutoff,
	})

	captioner := caption.NewClient(caption.ClientConfig{
		APIKey:        cfg.Gemini.APIKey,
		Model:         cfg.Gemini.Model,
		FallbackModel: cfg.Gemini.FallbackModel,
		BaseURL:       cfg.Gemini.BaseURL,
		MaxRetries:    cfg.Gemini.MaxRetries,
	}, zlog)

	writer := subtitle.NewWriter(zlog)

	burner := render.NewBurner(cfg.Pipeline.FFmpegPath, ffmpeg, detector, zlog)

	return pipeline.New(cfg.Pipeline, ffmpeg, segmenter, captioner, writer, burner, zlog)
}

type worker struct {
	id       string
	cfg      *config.Config
	storage  *storage.Storage
	queue    *queue.Queue
	sink     progress.Sink
	pipeline *pipeline.Pipeline
	notifier *webhook.Service
	logger   zerolog.Logger
}

// handle processes one caption job end to end: download the input, run the
// pipeline, upload the outputs. The context comes from the consume loop so
// shutdown cancels an in-flight run. Errors bubble up so the queue can
// route the job through the retry path.
func (w *worker) handle(ctx context.Context, job *models.CaptionJob) error {
	logger := w.logger.With().Str("job_id", job.ID).Str("input", job.InputObject).Logger()

	logger.Info().Msg("Processing caption job")
	metrics.JobsConsumedTotal.Inc()
	_ = w.notifier.NotifyJobStarted(ctx, job)

	workDir := filepath.Join(w.cfg.Pipeline.TempDir, "jobs", job.ID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, filepath.Base(job.InputObject))
	if err := w.storage.DownloadFile(ctx, job.InputObject, inputPath); err != nil {
		w.publishFailure(ctx, job, err)
		return fmt.Errorf("download input: %w", err)
	}

	onProgress := func(percent float64, message string) {
		event := models.ProgressEvent{
			ProcessID: job.ID,
			Percent:   percent,
			Message:   message,
		}
		if err := w.sink.Publish(ctx, event); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish progress event")
		}
	}

	result, err := w.pipeline.Process(ctx, inputPath, pipeline.RunOptions{
		ContentType: job.ContentType,
		StyleName:   job.StyleName,
		OutputDir:   workDir,
	}, onProgress)
	if err != nil {
		w.publishFailure(ctx, job, err)
		return fmt.Errorf("caption pipeline: %w", err)
	}

	artifacts, err := w.storage.UploadRunArtifacts(ctx, job.ID, result)
	if err != nil {
		w.publishFailure(ctx, job, err)
		return fmt.Errorf("upload artifacts: %w", err)
	}

	// Local paths mean nothing to consumers; report the stored objects.
	result.SubtitlePath = artifacts.SubtitleObject
	result.OutputVideoPath = artifacts.OutputObject

	terminal := models.ProgressEvent{
		ProcessID: job.ID,
		Percent:   100,
		Message:   "completed",
		Result:    result,
	}
	if err := w.sink.Publish(ctx, terminal); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish completion event")
	}
	_ = w.notifier.NotifyJobCompleted(ctx, job, result)

	logger.Info().
		Int("captions", len(result.Captions)).
		Str("output", artifacts.OutputObject).
		Msg("Caption job completed")
	return nil
}

func (w *worker) publishFailure(ctx context.Context, job *models.CaptionJob, jobErr error) {
	event := models.ProgressEvent{
		ProcessID: job.ID,
		Percent:   100,
		Message:   "failed",
		Error:     jobErr.Error(),
	}
	if err := w.sink.Publish(ctx, event); err != nil {
		w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to publish failure event")
	}
	_ = w.notifier.NotifyJobFailed(ctx, job, jobErr)
}

func workerIdentity() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}
