// Package pipeline sequences duration probing, audio extraction, and
// thumbnail generation over a single validated input file.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThinkFoundation/thinkos-ingest/internal/ffmpeg"
)

// Stage identifies one phase of a pipeline run. Stages are strictly
// sequential; a run never transitions backwards.
type Stage string

const (
	StageProbingDuration     Stage = "probing_duration"
	StageExtractingAudio     Stage = "extracting_audio"
	StageGeneratingThumbnail Stage = "generating_thumbnail"
	StageDone                Stage = "done"
)

// Audio extraction dominates the cost of a run, so it owns the first 80% of
// the overall completion scale and thumbnail generation the rest.
const extractBandEnd = 80

// Event reports the current stage and overall completion percent.
type Event struct {
	Stage   Stage
	Percent int
}

// Result carries the derived artifact paths. AudioPath is always set on
// success; ThumbnailPath is empty when the thumbnail stage failed, which is
// the only tolerated partial outcome.
type Result struct {
	AudioPath     string
	ThumbnailPath string
}

// StageError is a fatal failure of a mandatory stage.
type StageError struct {
	Stage    Stage
	Timeout  bool
	ExitCode int
	Detail   string
	Err      error
}

func (e *StageError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s: killed after exceeding stage timeout", e.Stage)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("%s: exit status %d: %s", e.Stage, e.ExitCode, e.Detail)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// Runner abstracts subprocess execution so tests can run without the real
// binary.
type Runner interface {
	Run(ctx context.Context, spec ffmpeg.Spec, onChunk func(string)) (ffmpeg.Outcome, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, spec ffmpeg.Spec, onChunk func(string)) (ffmpeg.Outcome, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, spec ffmpeg.Spec, onChunk func(string)) (ffmpeg.Outcome, error) {
	return f(ctx, spec, onChunk)
}

// Options tunes one pipeline instance.
type Options struct {
	BinaryPath             string
	AudioBitrate           string
	ThumbnailOffsetSeconds float64
	ProbeTimeout           time.Duration
	ExtractTimeout         time.Duration
	ThumbnailTimeout       time.Duration
}

func (o *Options) applyDefaults() {
	if o.BinaryPath == "" {
		o.BinaryPath = "ffmpeg"
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = "128k"
	}
	if o.ThumbnailOffsetSeconds <= 0 {
		o.ThumbnailOffsetSeconds = 1
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 30 * time.Second
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 5 * time.Minute
	}
	if o.ThumbnailTimeout <= 0 {
		o.ThumbnailTimeout = 30 * time.Second
	}
}

// Pipeline holds no per-run state; one instance may serve concurrent runs
// over different input files.
type Pipeline struct {
	opts   Options
	runner Runner
	logger *slog.Logger
}

// New constructs a pipeline backed by the real subprocess runner.
func New(logger *slog.Logger, opts Options) *Pipeline {
	return NewWithRunner(logger, opts, RunnerFunc(ffmpeg.Run))
}

// NewWithRunner constructs a pipeline with an injected runner.
func NewWithRunner(logger *slog.Logger, opts Options, runner Runner) *Pipeline {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{opts: opts, runner: runner, logger: logger}
}

// Run executes the three stages against inputPath, emitting progress through
// onProgress (when non-nil). Emitted percentages are monotonically
// non-decreasing for the whole run.
//
// The duration probe is best-effort: a failed or unparseable probe disables
// percentage reporting but never blocks extraction. Audio extraction failure
// is fatal. Thumbnail failure degrades to an empty ThumbnailPath.
func (p *Pipeline) Run(ctx context.Context, inputPath string, onProgress func(Event)) (Result, error) {
	last := -1
	emit := func(stage Stage, percent int) {
		if percent < last {
			return
		}
		last = percent
		if onProgress != nil {
			onProgress(Event{Stage: stage, Percent: percent})
		}
	}

	emit(StageProbingDuration, 0)
	total := p.probeDuration(ctx, inputPath)

	audioPath := ffmpeg.AudioOutputPath(inputPath)
	emit(StageExtractingAudio, 0)
	outcome, err := p.runner.Run(ctx, ffmpeg.Spec{
		BinaryPath: p.opts.BinaryPath,
		Args:       ffmpeg.ExtractAudioArgs(inputPath, audioPath, p.opts.AudioBitrate),
		Timeout:    p.opts.ExtractTimeout,
	}, func(chunk string) {
		if pct, ok := ffmpeg.ExtractPercent(chunk, total); ok {
			emit(StageExtractingAudio, pct*extractBandEnd/100)
		}
	})
	if err != nil {
		return Result{}, &StageError{Stage: StageExtractingAudio, Err: err}
	}
	if outcome.KilledByTimeout {
		return Result{}, &StageError{Stage: StageExtractingAudio, Timeout: true}
	}
	if outcome.ExitCode != 0 {
		return Result{}, &StageError{
			Stage:    StageExtractingAudio,
			ExitCode: outcome.ExitCode,
			Detail:   outputTail(outcome.Output),
		}
	}
	emit(StageExtractingAudio, extractBandEnd)

	emit(StageGeneratingThumbnail, extractBandEnd)
	thumbPath := p.generateThumbnail(ctx, inputPath)

	emit(StageDone, 100)
	return Result{AudioPath: audioPath, ThumbnailPath: thumbPath}, nil
}

// probeDuration runs the binary in probe mode and parses the duration token
// out of its full captured output. Any failure degrades to zero, which
// suppresses percentage reporting downstream.
func (p *Pipeline) probeDuration(ctx context.Context, inputPath string) float64 {
	outcome, err := p.runner.Run(ctx, ffmpeg.Spec{
		BinaryPath: p.opts.BinaryPath,
		Args:       ffmpeg.ProbeArgs(inputPath),
		Timeout:    p.opts.ProbeTimeout,
	}, nil)
	if err != nil {
		p.logger.Warn("duration probe failed, progress reporting disabled",
			"input", inputPath, "error", err)
		return 0
	}
	if outcome.KilledByTimeout {
		p.logger.Warn("duration probe timed out, progress reporting disabled",
			"input", inputPath)
		return 0
	}

	// Probe mode exits non-zero by design (no output file was requested);
	// the duration line is printed regardless.
	total, ok := ffmpeg.ParseDuration(outcome.Output)
	if !ok {
		p.logger.Warn("no parseable duration in probe output, progress reporting disabled",
			"input", inputPath)
		return 0
	}
	return total
}

// generateThumbnail captures a single frame. Every failure mode here is
// non-fatal: a missing thumbnail degrades presentation only.
func (p *Pipeline) generateThumbnail(ctx context.Context, inputPath string) string {
	thumbPath := ffmpeg.ThumbnailOutputPath(inputPath)
	outcome, err := p.runner.Run(ctx, ffmpeg.Spec{
		BinaryPath: p.opts.BinaryPath,
		Args:       ffmpeg.ThumbnailArgs(inputPath, thumbPath, p.opts.ThumbnailOffsetSeconds),
		Timeout:    p.opts.ThumbnailTimeout,
	}, nil)
	switch {
	case err != nil:
		p.logger.Warn("thumbnail generation failed", "input", inputPath, "error", err)
		return ""
	case outcome.KilledByTimeout:
		p.logger.Warn("thumbnail generation timed out", "input", inputPath)
		return ""
	case outcome.ExitCode != 0:
		p.logger.Warn("thumbnail generation exited non-zero",
			"input", inputPath, "exit_code", outcome.ExitCode)
		return ""
	}
	return thumbPath
}

func outputTail(output string) string {
	output = strings.TrimSpace(output)
	const max = 300
	if len(output) > max {
		output = output[len(output)-max:]
	}
	return output
}
