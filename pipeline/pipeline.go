package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"slidecast/audio"
	"slidecast/config"
	"slidecast/genclient"
	"slidecast/media"
	"slidecast/retry"
	"slidecast/textutil"
	"slidecast/types"
)

// Result is what a successful run hands back to the caller.
type Result struct {
	Description   string
	OutputDir     string
	VideoPath     string
	ThumbnailPath string
}

// Pipeline drives one video generation end to end. A Pipeline instance is
// single-use: construct, Run once, discard.
type Pipeline struct {
	cfg    *config.Config
	req    types.GenerationRequest
	events types.Events

	// Service and Runner may be replaced before Run for testing. When
	// Service is nil, Init builds a client from the request's workflow file.
	Service genclient.Service
	Runner  media.Runner

	cancelled atomic.Bool
	caller    *retry.Caller

	stage     Stage
	runID     string
	outputDir string
	tempDir   string
	start     time.Time
	stepOrder []string
	stepTimes map[string]time.Duration
}

// New creates a pipeline for one request. events may be nil.
func New(cfg *config.Config, req types.GenerationRequest, events types.Events) *Pipeline {
	if events == nil {
		events = types.EventFuncs{}
	}
	p := &Pipeline{
		cfg:       cfg,
		req:       req,
		events:    events,
		Runner:    media.ExecRunner{},
		stage:     StagePending,
		runID:     uuid.NewString(),
		stepTimes: make(map[string]time.Duration),
	}
	p.caller = retry.New(p.isCancelled)
	return p
}

// Cancel requests a cooperative stop. In-flight external calls finish; no
// new work starts afterward. The flag is monotonic.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
}

func (p *Pipeline) isCancelled() bool {
	return p.cancelled.Load()
}

func (p *Pipeline) checkCancelled() error {
	if p.isCancelled() {
		return retry.ErrCancelled
	}
	return nil
}

// Run executes all stages in order. It emits exactly one Finished event,
// removes the temp working directory on every path, and returns the result
// of a completed run or the first error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	p.start = time.Now()
	var res Result
	var introScript string

	defer func() {
		if p.tempDir != "" {
			if err := os.RemoveAll(p.tempDir); err != nil {
				log.Printf("[pipeline] temp dir cleanup failed: %v", err)
			}
		}
		if introScript != "" {
			p.events.Finished(textutil.FirstParagraph(introScript))
		} else {
			p.events.Finished("Generation failed")
		}
	}()

	run := func() error {
		if err := p.advance(StageInit); err != nil {
			return err
		}
		if err := p.initialize(); err != nil {
			return err
		}

		if err := p.advance(StageScript); err != nil {
			return err
		}
		script, intro, err := p.generateScripts(ctx)
		if err != nil {
			return err
		}
		introScript = intro

		if err := p.advance(StageThumbnail); err != nil {
			return err
		}
		if err := p.generateThumbnail(ctx); err != nil {
			return err
		}

		if err := p.advance(StageImages); err != nil {
			return err
		}
		numImages, err := p.generateImages(ctx, script)
		if err != nil {
			return err
		}

		if err := p.advance(StageAudio); err != nil {
			return err
		}
		numAudio, err := p.generateAudio(ctx, script)
		if err != nil {
			return err
		}

		if err := p.advance(StageAssembly); err != nil {
			return err
		}
		videoPath, err := p.assembleVideo(ctx, numAudio, numImages)
		if err != nil {
			return err
		}

		res = Result{
			Description:   textutil.FirstParagraph(intro),
			OutputDir:     p.outputDir,
			VideoPath:     videoPath,
			ThumbnailPath: filepath.Join(p.outputDir, "thumbnail.jpg"),
		}
		p.logRuntimeSummary(numImages, numAudio)
		return p.advance(StageDone)
	}

	if err := run(); err != nil {
		elapsed := time.Since(p.start)
		if errors.Is(err, retry.ErrCancelled) {
			if CanTransition(p.stage, StageCancelled) {
				p.stage = StageCancelled
			}
			log.Printf("[pipeline] 🛑 Generation cancelled after %s (%d stages completed)",
				formatDuration(elapsed), len(p.stepOrder))
		} else {
			if CanTransition(p.stage, StageError) {
				p.stage = StageError
			}
			log.Printf("[pipeline] ❌ Video generation failed after %s: %v", formatDuration(elapsed), err)
			p.events.Failed(err.Error())
		}
		return Result{}, err
	}
	return res, nil
}

// advance moves to the next stage after validating the transition, emits the
// stage's operation name, and logs the step banner.
func (p *Pipeline) advance(to Stage) error {
	if !CanTransition(p.stage, to) {
		return invalidTransition(p.stage, to)
	}
	p.stage = to
	if op, ok := stageOperations[to]; ok {
		p.events.Operation(op)
	}
	if to != StageDone {
		log.Printf("[pipeline] Step %d/6: %s", stageNumber(to), stageOperations[to])
	}
	return nil
}

func stageNumber(s Stage) int {
	switch s {
	case StageInit:
		return 1
	case StageScript:
		return 2
	case StageThumbnail:
		return 3
	case StageImages:
		return 4
	case StageAudio:
		return 5
	case StageAssembly:
		return 6
	}
	return 0
}

func (p *Pipeline) initialize() error {
	stepStart := time.Now()

	p.outputDir = filepath.Join(p.cfg.Paths.OutputRoot, p.req.VideoTitle)
	if err := os.MkdirAll(p.outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	p.tempDir = filepath.Join(p.cfg.Paths.WorkRoot, p.runID)
	if err := os.MkdirAll(p.tempDir, 0755); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}
	log.Printf("[pipeline] Working directory %s ready", p.tempDir)

	if p.Service == nil {
		workflow, err := loadWorkflow(p.req.WorkflowPath)
		if err != nil {
			return fmt.Errorf("load workflow: %w", err)
		}
		p.Service = genclient.New(p.cfg, p.req.APIKey, workflow)
	}

	p.events.Progress(5)
	p.stepDone(StageInit, stepStart)
	return nil
}

func loadWorkflow(path string) (json.RawMessage, error) {
	if path == "" {
		return nil, errors.New("no workflow file given")
	}
	return config.LoadWorkflow(path)
}

// generateScripts produces the intro, LoopLength chained looping segments and
// the outro, each continuing the previous call's context. Returns the
// sanitized combined script and the sanitized intro.
func (p *Pipeline) generateScripts(ctx context.Context) (script, intro string, err error) {
	stepStart := time.Now()

	log.Println("[pipeline] Generating intro script...")
	intro, prevID, err := p.generateText(ctx, "intro script", p.req.IntroPrompt, "")
	if err != nil {
		return "", "", err
	}
	p.events.Progress(6)

	parts := []string{intro}
	for idx := 1; idx <= p.req.LoopLength; idx++ {
		if err := p.checkCancelled(); err != nil {
			return "", "", err
		}
		log.Printf("[pipeline] Generating looping script (%d/%d)...", idx, p.req.LoopLength)
		var segment string
		segment, prevID, err = p.generateText(ctx,
			fmt.Sprintf("looping script %d", idx), p.req.LoopingPrompt, prevID)
		if err != nil {
			return "", "", err
		}
		parts = append(parts, segment)
		p.events.Progress(6 + idx*3/p.req.LoopLength)
	}

	log.Println("[pipeline] Generating outro script...")
	outro, _, err := p.generateText(ctx, "outro script", p.req.OutroPrompt, prevID)
	if err != nil {
		return "", "", err
	}
	parts = append(parts, outro)
	p.events.Progress(10)

	script = textutil.SanitizeScript(strings.Join(parts, "\n\n"))
	intro = textutil.SanitizeScript(intro)

	if err := os.WriteFile(filepath.Join(p.outputDir, "script.txt"), []byte(script), 0644); err != nil {
		return "", "", fmt.Errorf("save script: %w", err)
	}

	log.Println("[pipeline] ✅ Scripts generated successfully!")
	p.stepDone(StageScript, stepStart)
	return script, intro, nil
}

func (p *Pipeline) generateText(ctx context.Context, site, prompt, prevID string) (string, string, error) {
	var text, id string
	err := p.caller.Do(site, func() error {
		var err error
		text, id, err = p.Service.GenerateText(ctx, prompt, prevID)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return text, id, nil
}

func (p *Pipeline) generateThumbnail(ctx context.Context) error {
	stepStart := time.Now()

	var img []byte
	err := p.caller.Do("thumbnail generation", func() error {
		var err error
		img, err = p.Service.GenerateImage(ctx, p.req.ThumbnailPrompt, 1280, 720)
		return err
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(p.outputDir, "thumbnail.jpg"), img, 0644); err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}

	log.Println("[pipeline] ✅ Thumbnail generated successfully!")
	p.events.Progress(25)
	p.stepDone(StageThumbnail, stepStart)
	return nil
}

// generateImages renders one still per script chunk, sequentially. Each
// image's resolved prompt is saved next to it for auditability.
func (p *Pipeline) generateImages(ctx context.Context, script string) (int, error) {
	stepStart := time.Now()

	chunks := textutil.SplitChunks(script, p.req.ImageCount, p.req.ImageWordLimit)
	for idx, chunk := range chunks {
		if err := p.checkCancelled(); err != nil {
			return 0, err
		}

		prompt := strings.ReplaceAll(p.req.ImagesPrompt, "$chunk", chunk)
		promptFile := filepath.Join(p.outputDir, fmt.Sprintf("image%d-prompt.txt", idx+1))
		if err := os.WriteFile(promptFile, []byte(prompt), 0644); err != nil {
			return 0, fmt.Errorf("save image prompt %d: %w", idx+1, err)
		}

		var img []byte
		err := p.caller.Do(fmt.Sprintf("image %d", idx+1), func() error {
			var err error
			img, err = p.Service.GenerateImage(ctx, prompt, 1920, 1080)
			return err
		})
		if err != nil {
			return 0, err
		}
		imgFile := filepath.Join(p.outputDir, fmt.Sprintf("image%d.jpg", idx+1))
		if err := os.WriteFile(imgFile, img, 0644); err != nil {
			return 0, fmt.Errorf("save image %d: %w", idx+1, err)
		}

		log.Printf("[pipeline] Generated image %d/%d!", idx+1, len(chunks))
		p.events.Progress(25 + (idx+1)*20/len(chunks))
	}

	p.stepDone(StageImages, stepStart)
	return len(chunks), nil
}

func (p *Pipeline) generateAudio(ctx context.Context, script string) (int, error) {
	stepStart := time.Now()

	chunks := textutil.SplitChunks(script, -1, p.req.AudioWordLimit)
	gen := &audio.Generator{
		Speech:  p.Service,
		Caller:  p.caller,
		Workers: p.cfg.Audio.Workers,
	}
	win := audio.ProgressWindow{Base: 45, Span: 20}
	if err := gen.Generate(ctx, chunks, p.outputDir, win, p.events.Progress); err != nil {
		return 0, err
	}

	p.stepDone(StageAudio, stepStart)
	return len(chunks), nil
}

func (p *Pipeline) assembleVideo(ctx context.Context, numAudio, numImages int) (string, error) {
	stepStart := time.Now()

	asm := media.NewAssembler(p.cfg, p.Runner, p.isCancelled)
	videoPath, err := asm.Assemble(ctx, media.Input{
		OutputDir: p.outputDir,
		WorkDir:   p.tempDir,
		NumAudio:  numAudio,
		NumImages: numImages,
		Emit:      p.events.Progress,
	})
	if err != nil {
		return "", err
	}

	log.Println("[pipeline] ✅ Final video with audio created successfully!")
	p.events.Progress(100)
	p.stepDone(StageAssembly, stepStart)
	return videoPath, nil
}

func (p *Pipeline) stepDone(s Stage, start time.Time) {
	label := stageLabels[s]
	d := time.Since(start)
	p.stepOrder = append(p.stepOrder, label)
	p.stepTimes[label] = d
	log.Printf("[pipeline] ⏱ %s completed in %.2f seconds", label, d.Seconds())
}

func (p *Pipeline) logRuntimeSummary(numImages, numAudio int) {
	total := time.Since(p.start)

	log.Println("[pipeline] 🎬 VIDEO GENERATION RUNTIME SUMMARY")
	log.Printf("[pipeline] 📊 Total runtime: %s", formatDuration(total))
	for _, label := range p.stepOrder {
		d := p.stepTimes[label]
		pct := 0.0
		if total > 0 {
			pct = d.Seconds() / total.Seconds() * 100
		}
		log.Printf("[pipeline]    %s: %s (%.1f%%)", label, formatDuration(d), pct)
	}
	if d := p.stepTimes[stageLabels[StageScript]]; d > 0 {
		scripts := float64(1 + p.req.LoopLength + 1)
		log.Printf("[pipeline] 📝 Script generation rate: %.2f scripts/second", scripts/d.Seconds())
	}
	if d := p.stepTimes[stageLabels[StageImages]]; d > 0 {
		log.Printf("[pipeline] 🖼 Image generation rate: %.2f images/second", float64(numImages)/d.Seconds())
	}
	if d := p.stepTimes[stageLabels[StageAudio]]; d > 0 {
		log.Printf("[pipeline] 🎵 Audio generation rate: %.2f clips/second", float64(numAudio)/d.Seconds())
	}
	log.Printf("[pipeline] 🎯 Video title: %s", p.req.VideoTitle)
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	hours := int(secs) / 3600
	minutes := (int(secs) % 3600) / 60
	rem := secs - float64(hours*3600+minutes*60)
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %.1fs", hours, minutes, rem)
	case minutes > 0:
		return fmt.Sprintf("%dm %.1fs", minutes, rem)
	default:
		return fmt.Sprintf("%.1fs", rem)
	}
}
