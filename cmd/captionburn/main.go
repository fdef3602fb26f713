// Command captionburn runs the caption pipeline on one local video file:
// probe, segment, caption, and burn, writing the subtitled video and the
// SRT file next to each other.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/coursemedia/captionburn/internal/caption"
	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/logging"
	"github.com/coursemedia/captionburn/internal/media"
	"github.com/coursemedia/captionburn/internal/pipeline"
	"github.com/coursemedia/captionburn/internal/render"
	"github.com/coursemedia/captionburn/internal/subtitle"
)

func main() {
	var (
		inputPath   = flag.String("input", "", "video file to caption (required)")
		outputDir   = flag.String("output", "", "directory for the subtitled video and SRT file (default: alongside the input)")
		contentType = flag.String("content-type", "lecture", "content type hint for captioning (lecture, tutorial, ...)")
		styleName   = flag.String("style", "", "subtitle style preset (default: derived from content type)")
		configPath  = flag.String("config", "", "optional config file")
		apiKey      = flag.String("api-key", "", "captioning model API key (overrides GEMINI_APIKEY)")
		listStyles  = flag.Bool("list-styles", false, "print the available style presets and exit")
	)
	flag.Parse()

	if *listStyles {
		fmt.Println(strings.Join(subtitle.PresetNames(), "\n"))
		return
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: captionburn -input video.mp4 [-content-type lecture] [-style highContrast]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Defaults()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *apiKey != "" {
		cfg.Gemini.APIKey = *apiKey
	}
	if cfg.Gemini.APIKey == "" {
		fmt.Fprintln(os.Stderr, "A captioning model API key is required (-api-key or GEMINI_APIKEY)")
		os.Exit(1)
	}

	logger, err := logging.NewConsoleLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	zlog := logger.Zerolog()

	ffmpeg := media.NewFFmpeg(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
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
	burner := render.NewBurner(cfg.Pipeline.FFmpegPath, ffmpeg, media.NewHWAccelDetector(), zlog)

	p := pipeline.New(cfg.Pipeline, ffmpeg, segmenter, captioner, writer, burner, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onProgress := func(percent float64, message string) {
		zlog.Info().Int("percent", int(percent)).Msg(message)
	}

	destDir := *outputDir
	if destDir == "" {
		destDir = filepath.Dir(*inputPath)
	}

	result, err := p.Process(ctx, *inputPath, pipeline.RunOptions{
		ContentType: *contentType,
		StyleName:   *styleName,
		OutputDir:   destDir,
	}, onProgress)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Captioning failed")
	}

	srtDest := filepath.Join(destDir, strings.TrimSuffix(filepath.Base(*inputPath), filepath.Ext(*inputPath))+".srt")
	videoDest := filepath.Join(destDir, "captioned_"+filepath.Base(*inputPath))

	if err := moveFile(result.SubtitlePath, srtDest); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to place subtitle file")
	}
	if err := moveFile(result.OutputVideoPath, videoDest); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to place output video")
	}

	zlog.Info().
		Int("captions", len(result.Captions)).
		Str("subtitles", srtDest).
		Str("video", videoDest).
		Msg("Done")
}

// moveFile renames when possible and falls back to copying across
// filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
