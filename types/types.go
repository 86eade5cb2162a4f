package types

import "net/http"

// GenerationRequest holds the immutable per-run configuration for one video.
// It is owned by exactly one pipeline run and never mutated after construction.
type GenerationRequest struct {
	APIKey          string `json:"api_key"`
	VideoTitle      string `json:"video_title"`
	ThumbnailPrompt string `json:"thumbnail_prompt"`
	ImagesPrompt    string `json:"images_prompt"`
	IntroPrompt     string `json:"intro_prompt"`
	LoopingPrompt   string `json:"looping_prompt"`
	OutroPrompt     string `json:"outro_prompt"`
	LoopLength      int    `json:"loop_length"`
	AudioWordLimit  int    `json:"audio_word_limit"`
	ImageCount      int    `json:"image_count"`
	ImageWordLimit  int    `json:"image_word_limit"`
	WorkflowPath    string `json:"workflow_path"`
}

// Per-item batch statuses. These are the exact strings shown in the batch
// table and written back to saved row data.
const (
	StatusReady           = "Ready"
	StatusValidating      = "Validating"
	StatusProcessing      = "Processing"
	StatusCompleted       = "Completed"
	StatusError           = "Error"
	StatusErrorValidation = "Error (Validation)"
)

// BatchItem is one row of a batch job. Items are processed strictly one at a
// time; Status and Progress are only written by the batch runner.
type BatchItem struct {
	VideoTitle   string `json:"video_title"`
	PresetPath   string `json:"preset_path"`
	WorkflowPath string `json:"workflow_path"`
	Account      string `json:"account"`
	Category     string `json:"category"`
	Schedule     string `json:"schedule"` // local ISO timestamp, empty = publish immediately

	Status   string `json:"status"`
	Progress string `json:"progress"`
	VideoURL string `json:"video_url"`

	// Credentials is the resolved account handle, attached before the run
	// starts. nil means the account could not be resolved.
	Credentials *http.Client `json:"-"`
}

// Terminal states for a whole batch run.
const (
	RunCompleted = "completed"
	RunCancelled = "cancelled"
)

// RunSummary is the aggregate report for one batch run.
// Successful+Failed equals Total once the run completes naturally.
type RunSummary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Failures   []string `json:"failures"`
	State      string   `json:"state"`
}

// Events receives progress and lifecycle notifications from a pipeline run.
// Implementations must be cheap; they are invoked from the run's own
// goroutine (and, for Progress, from audio worker goroutines).
type Events interface {
	Progress(percent int)
	Operation(name string)
	Finished(description string)
	Failed(message string)
}

// EventFuncs adapts plain functions to Events. Nil fields are no-ops.
type EventFuncs struct {
	OnProgress  func(int)
	OnOperation func(string)
	OnFinished  func(string)
	OnFailed    func(string)
}

func (e EventFuncs) Progress(p int) {
	if e.OnProgress != nil {
		e.OnProgress(p)
	}
}

func (e EventFuncs) Operation(name string) {
	if e.OnOperation != nil {
		e.OnOperation(name)
	}
}

func (e EventFuncs) Finished(description string) {
	if e.OnFinished != nil {
		e.OnFinished(description)
	}
}

func (e EventFuncs) Failed(message string) {
	if e.OnFailed != nil {
		e.OnFailed(message)
	}
}
