package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Services ServicesConfig `yaml:"services"`
	Audio    AudioConfig    `yaml:"audio"`
	Media    MediaConfig    `yaml:"media"`
	Paths    PathsConfig    `yaml:"paths"`
	Upload   UploadConfig   `yaml:"upload"`
}

type ServicesConfig struct {
	TextURL          string  `yaml:"text_url"`
	TextModel        string  `yaml:"text_model"`
	TextMaxTokens    int     `yaml:"text_max_tokens"`
	TextTemperature  float64 `yaml:"text_temperature"`
	ImageURL         string  `yaml:"image_url"`
	SpeechURL        string  `yaml:"speech_url"`
	TextTimeoutSec   int     `yaml:"text_timeout_sec"`
	ImageTimeoutSec  int     `yaml:"image_timeout_sec"`
	SpeechTimeoutSec int     `yaml:"speech_timeout_sec"`
}

type AudioConfig struct {
	Voice    string  `yaml:"voice"`
	Speed    float64 `yaml:"speed"`
	Language string  `yaml:"language"`
	Workers  int     `yaml:"workers"`
}

type MediaConfig struct {
	FFmpegBin   string `yaml:"ffmpeg_bin"`
	FFprobeBin  string `yaml:"ffprobe_bin"`
	OverlayClip string `yaml:"overlay_clip"`
}

type PathsConfig struct {
	OutputRoot string `yaml:"output_root"`
	WorkRoot   string `yaml:"work_root"`
}

type UploadConfig struct {
	PrivacyStatus     string `yaml:"privacy_status"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	DefaultLanguage   string `yaml:"default_language"`
}

// Load reads a YAML config file and fills in defaults for anything unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a usable configuration without a config file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Services.TextURL == "" {
		c.Services.TextURL = "https://api.openai.com/v1/responses"
	}
	if c.Services.TextModel == "" {
		c.Services.TextModel = "gpt-4o-mini"
	}
	if c.Services.TextMaxTokens == 0 {
		c.Services.TextMaxTokens = 16000
	}
	if c.Services.TextTemperature == 0 {
		c.Services.TextTemperature = 1.0
	}
	if c.Services.ImageURL == "" {
		c.Services.ImageURL = "http://localhost:5000/generate"
	}
	if c.Services.SpeechURL == "" {
		c.Services.SpeechURL = "http://localhost:8000/tts/base64"
	}
	if c.Services.TextTimeoutSec == 0 {
		c.Services.TextTimeoutSec = 300
	}
	if c.Services.ImageTimeoutSec == 0 {
		c.Services.ImageTimeoutSec = 300
	}
	if c.Services.SpeechTimeoutSec == 0 {
		c.Services.SpeechTimeoutSec = 180
	}
	if c.Audio.Voice == "" {
		c.Audio.Voice = "am_michael"
	}
	if c.Audio.Speed == 0 {
		c.Audio.Speed = 1
	}
	if c.Audio.Language == "" {
		c.Audio.Language = "a"
	}
	if c.Audio.Workers == 0 {
		c.Audio.Workers = 4
	}
	if c.Media.FFmpegBin == "" {
		c.Media.FFmpegBin = "ffmpeg"
	}
	if c.Media.FFprobeBin == "" {
		c.Media.FFprobeBin = "ffprobe"
	}
	if c.Media.OverlayClip == "" {
		c.Media.OverlayClip = "reference/particles.webm"
	}
	if c.Paths.OutputRoot == "" {
		c.Paths.OutputRoot = "."
	}
	if c.Paths.WorkRoot == "" {
		c.Paths.WorkRoot = "work"
	}
	if c.Upload.PrivacyStatus == "" {
		c.Upload.PrivacyStatus = "public"
	}
	if c.Upload.DefaultLanguage == "" {
		c.Upload.DefaultLanguage = "en"
	}
}
