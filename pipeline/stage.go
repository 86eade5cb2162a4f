package pipeline

import "fmt"

// Stage is one phase of a generation run. Stages advance strictly in order;
// Error and Cancelled are absorbing and reachable from any active stage.
type Stage string

const (
	// StagePending is the state of a constructed, not yet started run.
	StagePending   Stage = "Pending"
	StageInit      Stage = "Init"
	StageScript    Stage = "ScriptGen"
	StageThumbnail Stage = "ThumbnailGen"
	StageImages    Stage = "ImageGen"
	StageAudio     Stage = "AudioGen"
	StageAssembly  Stage = "VideoAssembly"
	StageDone      Stage = "Done"
	StageError     Stage = "Error"
	StageCancelled Stage = "Cancelled"
)

// next maps each active stage to its sole forward successor.
var next = map[Stage]Stage{
	StagePending:   StageInit,
	StageInit:      StageScript,
	StageScript:    StageThumbnail,
	StageThumbnail: StageImages,
	StageImages:    StageAudio,
	StageAudio:     StageAssembly,
	StageAssembly:  StageDone,
}

// Terminal reports whether a run in this stage is over.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError || s == StageCancelled
}

// CanTransition reports whether from may move to to: one step forward, or
// into a terminal failure state from any active stage. No skips, no re-entry.
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageError || to == StageCancelled {
		return true
	}
	return next[from] == to
}

// operation names for each stage, as surfaced to observers.
var stageOperations = map[Stage]string{
	StageInit:      "Initializing",
	StageScript:    "Generating Scripts",
	StageThumbnail: "Generating Thumbnail",
	StageImages:    "Generating Images",
	StageAudio:     "Generating Audios",
	StageAssembly:  "Generating Video",
	StageDone:      "Completed",
}

// timing labels recorded per completed stage.
var stageLabels = map[Stage]string{
	StageInit:      "Initialization",
	StageScript:    "Script Generation",
	StageThumbnail: "Thumbnail Generation",
	StageImages:    "Image Generation",
	StageAudio:     "Audio Generation",
	StageAssembly:  "Video Assembly",
}

func invalidTransition(from, to Stage) error {
	return fmt.Errorf("invalid stage transition %s -> %s", from, to)
}
