package batch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"slidecast/config"
	"slidecast/pipeline"
	"slidecast/retry"
	"slidecast/types"
	"slidecast/upload"
)

// ItemPipeline is what the runner needs from one generation run.
type ItemPipeline interface {
	Run(ctx context.Context) (pipeline.Result, error)
	Cancel()
}

// Publisher uploads one finished video.
type Publisher func(ctx context.Context, client *http.Client, in upload.Input, onProgress func(int)) (url, id string, err error)

// Runner processes batch items strictly one at a time, in input order.
// Per-item failures are recorded and the batch moves on; only cancellation
// stops it early.
type Runner struct {
	cfg    *config.Config
	items  []*types.BatchItem
	events types.Events

	// NewPipeline and Publish may be replaced for testing. A nil Publish
	// skips the upload step and completes items after generation.
	NewPipeline func(cfg *config.Config, req types.GenerationRequest, ev types.Events) ItemPipeline
	Publish     Publisher

	cancelled atomic.Bool
	mu        sync.Mutex
	current   ItemPipeline
}

// New creates a runner over items. events may be nil; it receives the
// per-item progress and operation stream prefixed with the item position.
func New(cfg *config.Config, items []*types.BatchItem, events types.Events) *Runner {
	if events == nil {
		events = types.EventFuncs{}
	}
	r := &Runner{
		cfg:    cfg,
		items:  items,
		events: events,
	}
	r.NewPipeline = func(cfg *config.Config, req types.GenerationRequest, ev types.Events) ItemPipeline {
		return pipeline.New(cfg, req, ev)
	}
	r.Publish = upload.New(cfg).Upload
	return r
}

// Cancel stops the batch after the current item's next cancellation check.
// The in-flight pipeline is cancelled too.
func (r *Runner) Cancel() {
	r.cancelled.Store(true)
	r.mu.Lock()
	if r.current != nil {
		r.current.Cancel()
	}
	r.mu.Unlock()
}

// Run processes every item and returns the aggregate report.
func (r *Runner) Run(ctx context.Context) types.RunSummary {
	summary := types.RunSummary{Total: len(r.items), State: types.RunCompleted}

	for i, item := range r.items {
		if r.cancelled.Load() {
			summary.State = types.RunCancelled
			break
		}
		r.processItem(ctx, i, item, &summary)
		if r.cancelled.Load() {
			summary.State = types.RunCancelled
			break
		}
	}

	log.Printf("[batch] %s", Report(summary))
	return summary
}

func (r *Runner) processItem(ctx context.Context, i int, item *types.BatchItem, summary *types.RunSummary) {
	n := i + 1
	total := len(r.items)

	item.Status = types.StatusValidating
	item.Progress = "0%"
	r.events.Operation(fmt.Sprintf("Validating item %d/%d", n, total))

	preset, err := r.validate(item)
	if err != nil {
		log.Printf("[batch] ✗ Item %d/%d failed validation: %v", n, total, err)
		item.Status = types.StatusErrorValidation
		summary.Failed++
		summary.Failures = append(summary.Failures, fmt.Sprintf("Item %d: validation failed: %v", n, err))
		return
	}

	item.Status = types.StatusProcessing
	r.events.Operation(fmt.Sprintf("Starting generation for item %d/%d", n, total))

	req := types.GenerationRequest{
		APIKey:          preset.APIKey,
		VideoTitle:      strings.ReplaceAll(item.VideoTitle, " ", "-"),
		ThumbnailPrompt: preset.ThumbnailPrompt,
		ImagesPrompt:    preset.ImagesPrompt,
		IntroPrompt:     preset.IntroPrompt,
		LoopingPrompt:   preset.LoopingPrompt,
		OutroPrompt:     preset.OutroPrompt,
		LoopLength:      preset.LoopLength,
		AudioWordLimit:  preset.AudioWordLimit,
		ImageCount:      preset.ImageCount,
		ImageWordLimit:  preset.ImageWordLimit,
		WorkflowPath:    item.WorkflowPath,
	}

	ev := types.EventFuncs{
		OnProgress: func(p int) {
			item.Progress = strconv.Itoa(p) + "%"
			r.events.Progress((i*100 + p) / total)
		},
		OnOperation: func(op string) {
			r.events.Operation(fmt.Sprintf("[%d/%d] %s", n, total, op))
		},
	}

	pl := r.NewPipeline(r.cfg, req, ev)
	r.mu.Lock()
	r.current = pl
	r.mu.Unlock()
	res, err := pl.Run(ctx)
	r.mu.Lock()
	r.current = nil
	r.mu.Unlock()

	if err != nil {
		if errors.Is(err, retry.ErrCancelled) {
			// Not a failure: the run was interrupted. The item can be
			// retried untouched in a later batch.
			item.Status = types.StatusReady
			item.Progress = "0%"
			return
		}
		item.Status = types.StatusError
		item.Progress = "0%"
		summary.Failed++
		summary.Failures = append(summary.Failures, fmt.Sprintf("Item %d: %v", n, err))
		return
	}

	if r.Publish != nil {
		url, err := r.publishItem(ctx, item, preset, res)
		if err != nil {
			log.Printf("[batch] ✗ Item %d/%d upload failed: %v", n, total, err)
			item.Status = types.StatusError
			summary.Failed++
			summary.Failures = append(summary.Failures, fmt.Sprintf("Item %d: upload: %v", n, err))
			return
		}
		item.VideoURL = url
	}

	log.Printf("[batch] ✓ Completed item %d/%d", n, total)
	item.Status = types.StatusCompleted
	item.Progress = "100%"
	summary.Successful++
}

// validate checks an item before any generation work starts. A failure here
// is a validation error, distinct from a generation failure.
func (r *Runner) validate(item *types.BatchItem) (*config.Preset, error) {
	if item.Account == "" {
		return nil, errors.New("account name is required")
	}
	preset, err := config.LoadPreset(item.PresetPath)
	if err != nil {
		return nil, err
	}
	if _, err := config.LoadWorkflow(item.WorkflowPath); err != nil {
		return nil, err
	}
	return preset, nil
}

func (r *Runner) publishItem(ctx context.Context, item *types.BatchItem, preset *config.Preset, res pipeline.Result) (string, error) {
	if item.Credentials == nil {
		return "", fmt.Errorf("no credentials for account %q", item.Account)
	}
	in := upload.Input{
		VideoPath:     res.VideoPath,
		ThumbnailPath: res.ThumbnailPath,
		Title:         item.VideoTitle,
		Description:   res.Description + "\n\n" + preset.Disclaimer,
		CategoryID:    item.Category,
		Schedule:      item.Schedule,
	}
	url, _, err := r.Publish(ctx, item.Credentials, in, func(p int) {
		item.Progress = strconv.Itoa(p) + "%"
	})
	return url, err
}

// Report renders the end-of-run summary: totals, and for a failing run the
// last five failure messages plus an overflow count.
func Report(s types.RunSummary) string {
	var b strings.Builder
	if s.State == types.RunCancelled {
		fmt.Fprintf(&b, "Bulk generation cancelled by user. Completed: %d, Failed: %d", s.Successful, s.Failed)
	} else {
		fmt.Fprintf(&b, "Bulk generation completed! Total: %d, Successful: %d, Failed: %d",
			s.Total, s.Successful, s.Failed)
	}
	if len(s.Failures) > 0 {
		b.WriteString("\n\nFailed items:")
		start := 0
		if len(s.Failures) > 5 {
			start = len(s.Failures) - 5
		}
		for i, msg := range s.Failures[start:] {
			fmt.Fprintf(&b, "\n%d. %s", i+1, msg)
		}
		if start > 0 {
			fmt.Fprintf(&b, "\n... and %d more errors (see logs for details)", start)
		}
	}
	return b.String()
}
