package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Preset is the per-item generation descriptor stored as a JSON file.
// The thumbnail_count / thumbnail_word_limit keys actually configure the
// slideshow images; the names are kept for existing preset files.
type Preset struct {
	APIKey          string `json:"api_key"`
	VideoTitle      string `json:"video_title"`
	ThumbnailPrompt string `json:"thumbnail_prompt"`
	ImagesPrompt    string `json:"images_prompt"`
	Disclaimer      string `json:"disclaimer"`
	IntroPrompt     string `json:"intro_prompt"`
	LoopingPrompt   string `json:"looping_prompt"`
	OutroPrompt     string `json:"outro_prompt"`
	LoopLength      int    `json:"loop_length"`
	AudioWordLimit  int    `json:"audio_word_limit"`
	ImageCount      int    `json:"thumbnail_count"`
	ImageWordLimit  int    `json:"thumbnail_word_limit"`
}

var presetRequiredKeys = []string{
	"api_key",
	"video_title",
	"thumbnail_prompt",
	"images_prompt",
	"disclaimer",
	"intro_prompt",
	"looping_prompt",
	"outro_prompt",
	"loop_length",
	"audio_word_limit",
	"thumbnail_count",
	"thumbnail_word_limit",
}

// LoadPreset reads and validates a preset descriptor. A preset missing any
// required key fails here, before any generation work starts.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	for _, key := range presetRequiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("preset %s missing required key %q", path, key)
		}
	}

	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	return &p, nil
}

type workflowNode struct {
	Meta struct {
		Title string `json:"title"`
	} `json:"_meta"`
}

// LoadWorkflow reads an image-backend workflow descriptor and checks it has
// at least one of the node titles the backend substitutes into: prompt,
// width, height or KSampler. The raw JSON is returned for embedding in
// generation requests.
func LoadWorkflow(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	var nodes map[string]workflowNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	for _, node := range nodes {
		switch node.Meta.Title {
		case "prompt", "width", "height", "KSampler":
			return json.RawMessage(data), nil
		}
	}
	return nil, fmt.Errorf("workflow %s has no prompt/width/height/KSampler node", path)
}
