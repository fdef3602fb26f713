package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/coursemedia/captionburn/internal/caption"
	"github.com/coursemedia/captionburn/internal/config"
	"github.com/coursemedia/captionburn/internal/media"
	"github.com/coursemedia/captionburn/internal/render"
	"github.com/coursemedia/captionburn/internal/subtitle"
	"github.com/coursemedia/captionburn/pkg/models"
)

type fakeProcessor struct {
	duration float64
	probeErr error
}

func (f *fakeProcessor) Probe(ctx context.Context, path string) (*models.VideoMetadata, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return &models.VideoMetadata{Duration: f.duration, Width: 1280, Height: 720}, nil
}

func (f *fakeProcessor) Preprocess(ctx context.Context, inputPath, outputPath string, opts media.PreprocessOptions) error {
	return os.WriteFile(outputPath, []byte("preprocessed"), 0o644)
}

func (f *fakeProcessor) ExtractLeading(ctx context.Context, inputPath, outputPath string, duration float64) error {
	return os.WriteFile(outputPath, []byte("extract"), 0o644)
}

type fakeSegmenter struct {
	count         int
	chunkSeconds  float64
	totalDuration float64
	err           error
}

func (f *fakeSegmenter) SegmentSmart(ctx context.Context, videoPath string, maxChunkSeconds float64, outDir string, maxDetectionWindow float64) (*media.SegmentResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	segments := make([]models.Segment, f.count)
	for i := range segments {
		path := filepath.Join(outDir, "segment.mp4")
		if err := os.WriteFile(path, []byte("segment"), 0o644); err != nil {
			return nil, err
		}
		segments[i] = models.Segment{
			Index:     i,
			Path:      path,
			StartTime: float64(i) * f.chunkSeconds,
			Duration:  f.chunkSeconds,
		}
	}
	return &media.SegmentResult{Segments: segments, TotalDuration: f.totalDuration}, nil
}

type fakeCaptioner struct {
	mu       sync.Mutex
	calls    []caption.RequestOptions
	generate func(opts caption.RequestOptions) ([]models.Caption, error)
}

func (f *fakeCaptioner) GenerateWithRetry(ctx context.Context, videoBase64 string, opts caption.RequestOptions) ([]models.Caption, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	return f.generate(opts)
}

func (f *fakeCaptioner) FallbackModel() string { return "gemini-1.5-flash" }

type fakeBurner struct {
	mu     sync.Mutex
	called bool
	style  subtitle.Style
	err    error
}

func (f *fakeBurner) Burn(ctx context.Context, videoPath, subtitlePath, outputPath string, style subtitle.Style, opts render.BurnOptions) error {
	f.mu.Lock()
	f.called = true
	f.style = style
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(50)
		opts.OnProgress(100)
	}
	return os.WriteFile(outputPath, []byte("burned"), 0o644)
}

func testConfig(tempDir string) config.PipelineConfig {
	return config.PipelineConfig{
		TempDir:               tempDir,
		ChunkSeconds:          600,
		MaxDetectionWindow:    3600,
		ShortVideoSeconds:     600,
		SegmentPayloadMaxMB:   100,
		PreprocessThresholdMB: 200,
		MaxConcurrentSegments: 3,
		MemoryThreshold:       0.99,
	}
}

func newTestPipeline(t *testing.T, processor *fakeProcessor, segmenter *fakeSegmenter, captioner *fakeCaptioner, burner *fakeBurner) *Pipeline {
	t.Helper()
	p := New(
		testConfig(t.TempDir()),
		processor,
		segmenter,
		captioner,
		subtitle.NewWriter(zerolog.Nop()),
		burner,
		zerolog.Nop(),
	)
	p.encode = func(path string) (string, error) { return "payload", nil }
	p.memoryWait = 0
	return p
}

func writeTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lesson_one.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcess_ShortVideo(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return []models.Caption{
				{Index: 0, Start: 0, End: 3, Text: "welcome to the lesson"},
				{Index: 1, Start: 3.5, End: 7, Text: "today we cover pipelines"},
				{Index: 2, Start: 7.5, End: 11, Text: "let us get started"},
			}, nil
		},
	}
	burner := &fakeBurner{}
	p := newTestPipeline(t, &fakeProcessor{duration: 120}, &fakeSegmenter{}, captioner, burner)

	var lastPercent float64
	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{ContentType: "lecture"}, func(percent float64, message string) {
		lastPercent = percent
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Captions) != 3 {
		t.Errorf("expected 3 captions, got %d", len(result.Captions))
	}
	if _, err := os.Stat(result.SubtitlePath); err != nil {
		t.Errorf("subtitle file missing: %v", err)
	}
	if _, err := os.Stat(result.OutputVideoPath); err != nil {
		t.Errorf("output video missing: %v", err)
	}
	if !burner.called {
		t.Error("burner was not invoked")
	}
	if lastPercent != 100 {
		t.Errorf("final progress should be 100, got %f", lastPercent)
	}

	// Direct path must not attach segment info
	if len(captioner.calls) != 1 || captioner.calls[0].SegmentInfo != nil {
		t.Errorf("unexpected captioner calls: %+v", captioner.calls)
	}
}

func TestProcess_ShortVideoCaptioningFailure(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return nil, errors.New("model unavailable")
		},
	}
	p := newTestPipeline(t, &fakeProcessor{duration: 60}, &fakeSegmenter{}, captioner, &fakeBurner{})

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{ContentType: "lecture"}, nil)
	if err != nil {
		t.Fatalf("run should degrade, not fail: %v", err)
	}

	if len(result.Captions) != 2 {
		t.Fatalf("expected 2 fallback captions, got %d", len(result.Captions))
	}
	if !strings.Contains(result.Captions[0].Text, "lesson one") {
		t.Errorf("fallback caption should derive from the file name, got %q", result.Captions[0].Text)
	}
}

func TestProcess_LongVideoSegmented(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			// Segment-relative times
			return []models.Caption{
				{Index: 0, Start: 0, End: 4, Text: "segment opening line"},
				{Index: 1, Start: 5, End: 9, Text: "segment closing line"},
			}, nil
		},
	}
	segmenter := &fakeSegmenter{count: 3, chunkSeconds: 600, totalDuration: 1800}
	p := newTestPipeline(t, &fakeProcessor{duration: 1800}, segmenter, captioner, &fakeBurner{})

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{ContentType: "tutorial"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captioner.calls) != 3 {
		t.Fatalf("expected one call per segment, got %d", len(captioner.calls))
	}
	for _, call := range captioner.calls {
		if call.SegmentInfo == nil {
			t.Fatal("segment calls must carry segment info")
		}
		if call.SegmentInfo.TotalDuration != 1800 {
			t.Errorf("segment info missing total duration: %+v", call.SegmentInfo)
		}
	}

	// Captions must be re-based to absolute time and sorted
	if len(result.Captions) != 6 {
		t.Fatalf("expected 6 captions, got %d", len(result.Captions))
	}
	for i := 1; i < len(result.Captions); i++ {
		if result.Captions[i].Start < result.Captions[i-1].Start {
			t.Errorf("captions not sorted by start: %v", result.Captions)
		}
	}
	if result.Captions[len(result.Captions)-1].Start < 1200 {
		t.Error("last segment captions were not offset by the segment start")
	}
}

func TestProcess_SegmentFallsBackToCheaperModel(t *testing.T) {
	captioner := &fakeCaptioner{}
	captioner.generate = func(opts caption.RequestOptions) ([]models.Caption, error) {
		if opts.Model == "" {
			return nil, errors.New("primary model overloaded")
		}
		return []models.Caption{{Index: 0, Start: 0, End: 5, Text: "from the fallback model"}}, nil
	}
	segmenter := &fakeSegmenter{count: 1, chunkSeconds: 600, totalDuration: 700}
	p := newTestPipeline(t, &fakeProcessor{duration: 700}, segmenter, captioner, &fakeBurner{})

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(captioner.calls) != 2 {
		t.Fatalf("expected a primary and a fallback call, got %d", len(captioner.calls))
	}
	if captioner.calls[1].Model != "gemini-1.5-flash" {
		t.Errorf("second call should use the fallback model, got %q", captioner.calls[1].Model)
	}
	if result.Captions[0].Text != "from the fallback model" {
		t.Errorf("unexpected captions: %v", result.Captions)
	}
}

func TestProcess_SegmentPlaceholdersWhenAllModelsFail(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return nil, errors.New("nothing works")
		},
	}
	segmenter := &fakeSegmenter{count: 2, chunkSeconds: 600, totalDuration: 1200}
	p := newTestPipeline(t, &fakeProcessor{duration: 1200}, segmenter, captioner, &fakeBurner{})

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Captions) != 4 {
		t.Fatalf("expected 2 placeholders per segment, got %d captions", len(result.Captions))
	}
	if !strings.Contains(result.Captions[0].Text, "[Segment") {
		t.Errorf("expected placeholder text, got %q", result.Captions[0].Text)
	}
}

func TestProcess_SegmentationFailureUsesFallback(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			t.Error("captioner should not be called when segmentation fails")
			return nil, nil
		},
	}
	segmenter := &fakeSegmenter{err: errors.New("disk full")}
	p := newTestPipeline(t, &fakeProcessor{duration: 1200}, segmenter, captioner, &fakeBurner{})

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Captions) != 2 {
		t.Fatalf("expected filename fallback captions, got %d", len(result.Captions))
	}
}

func TestProcess_TempDirReclaimedOnSuccess(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return []models.Caption{{Index: 0, Start: 0, End: 3, Text: "a caption"}}, nil
		},
	}

	baseDir := t.TempDir()
	outDir := t.TempDir()
	p := New(testConfig(baseDir), &fakeProcessor{duration: 60}, &fakeSegmenter{}, captioner,
		subtitle.NewWriter(zerolog.Nop()), &fakeBurner{}, zerolog.Nop())
	p.encode = func(path string) (string, error) { return "payload", nil }

	result, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{OutputDir: outDir}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, readErr := os.ReadDir(baseDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("temp run dir should be reclaimed on success, found %d entries", len(entries))
	}

	if filepath.Dir(result.SubtitlePath) != outDir || filepath.Dir(result.OutputVideoPath) != outDir {
		t.Errorf("outputs should land in the output dir, got %q and %q", result.SubtitlePath, result.OutputVideoPath)
	}
	if _, err := os.Stat(result.SubtitlePath); err != nil {
		t.Errorf("subtitle file missing: %v", err)
	}
	if _, err := os.Stat(result.OutputVideoPath); err != nil {
		t.Errorf("output video missing: %v", err)
	}
}

func TestProcess_StyleOverride(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return []models.Caption{{Index: 0, Start: 0, End: 3, Text: "a caption"}}, nil
		},
	}
	burner := &fakeBurner{}
	p := newTestPipeline(t, &fakeProcessor{duration: 60}, &fakeSegmenter{}, captioner, burner)

	_, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{
		StyleName:     "lecture",
		StyleOverride: &subtitle.Style{FontSize: 42},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if burner.style.FontSize != 42 {
		t.Errorf("override font size not applied, got %d", burner.style.FontSize)
	}
	if burner.style.Font != "Arial" || burner.style.Position != "bottom" {
		t.Errorf("unset override fields should inherit defaults, got %+v", burner.style)
	}
}

func TestProcess_BurnFailureCleansUp(t *testing.T) {
	captioner := &fakeCaptioner{
		generate: func(opts caption.RequestOptions) ([]models.Caption, error) {
			return []models.Caption{{Index: 0, Start: 0, End: 3, Text: "a caption"}}, nil
		},
	}
	burner := &fakeBurner{err: errors.New("encode failed")}

	baseDir := t.TempDir()
	p := New(testConfig(baseDir), &fakeProcessor{duration: 60}, &fakeSegmenter{}, captioner,
		subtitle.NewWriter(zerolog.Nop()), burner, zerolog.Nop())
	p.encode = func(path string) (string, error) { return "payload", nil }

	_, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{}, nil)
	if err == nil {
		t.Fatal("expected burn failure to fail the run")
	}

	entries, readErr := os.ReadDir(baseDir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("temp run dir should be removed on failure, found %d entries", len(entries))
	}
}

func TestProcess_ProbeFailureIsFatal(t *testing.T) {
	p := newTestPipeline(t, &fakeProcessor{probeErr: &media.ProbeError{Path: "x", Err: errors.New("no streams")}},
		&fakeSegmenter{}, &fakeCaptioner{generate: func(caption.RequestOptions) ([]models.Caption, error) { return nil, nil }}, &fakeBurner{})

	_, err := p.Process(context.Background(), writeTestVideo(t), RunOptions{}, nil)
	var pe *media.ProbeError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProbeError, got %v", err)
	}
}

func TestPreprocessOptionsNamedTiers(t *testing.T) {
	p := newTestPipeline(t, &fakeProcessor{duration: 100},
		&fakeSegmenter{}, &fakeCaptioner{}, &fakeBurner{})

	p.cfg.PreprocessResolution = "480p"
	p.cfg.PreprocessQuality = "high"

	opts := p.preprocessOptions()
	if opts.MaxWidth != 854 || opts.MaxHeight != 480 {
		t.Errorf("named resolution target = %dx%d, want 854x480", opts.MaxWidth, opts.MaxHeight)
	}
	if opts.TargetBitrate != "5M" {
		t.Errorf("named quality bitrate = %q, want 5M", opts.TargetBitrate)
	}
	if !opts.NormalizeAudio {
		t.Error("preprocess should normalize audio")
	}
}
