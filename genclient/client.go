package genclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"slidecast/config"
	"slidecast/retry"
)

// Service is the set of generative capabilities the pipeline depends on.
// Every call may fail transiently; callers go through retry.Caller.
type Service interface {
	// GenerateText produces text for prompt. prevID chains the call onto an
	// earlier response so the service keeps conversational context; pass ""
	// for a fresh context. Returns the text and the new continuation id.
	GenerateText(ctx context.Context, prompt, prevID string) (string, string, error)

	// GenerateImage renders prompt at the given pixel size and returns the
	// raw image bytes.
	GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, error)

	// GenerateSpeech synthesizes narration audio for text and returns the
	// raw audio bytes.
	GenerateSpeech(ctx context.Context, text string) ([]byte, error)
}

// Client talks to the three backing services over HTTP: a hosted text API
// and the local image and TTS servers.
type Client struct {
	cfg      *config.Config
	apiKey   string
	workflow json.RawMessage

	textHTTP   *http.Client
	imageHTTP  *http.Client
	speechHTTP *http.Client
}

// New creates a Client. workflow is the raw image-backend graph descriptor,
// embedded verbatim in every image request.
func New(cfg *config.Config, apiKey string, workflow json.RawMessage) *Client {
	return &Client{
		cfg:        cfg,
		apiKey:     apiKey,
		workflow:   workflow,
		textHTTP:   &http.Client{Timeout: time.Duration(cfg.Services.TextTimeoutSec) * time.Second},
		imageHTTP:  &http.Client{Timeout: time.Duration(cfg.Services.ImageTimeoutSec) * time.Second},
		speechHTTP: &http.Client{Timeout: time.Duration(cfg.Services.SpeechTimeoutSec) * time.Second},
	}
}

type textRequest struct {
	Model           string  `json:"model"`
	Input           string  `json:"input"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	PrevID          string  `json:"previous_response_id,omitempty"`
}

type textResponse struct {
	ID         string `json:"id"`
	OutputText string `json:"output_text"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GenerateText(ctx context.Context, prompt, prevID string) (string, string, error) {
	body := textRequest{
		Model:           c.cfg.Services.TextModel,
		Input:           prompt,
		MaxOutputTokens: c.cfg.Services.TextMaxTokens,
		Temperature:     c.cfg.Services.TextTemperature,
		TopP:            1.0,
		PrevID:          prevID,
	}

	respBytes, err := c.post(ctx, c.textHTTP, c.cfg.Services.TextURL, body)
	if err != nil {
		return "", "", err
	}

	var resp textResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return "", "", fmt.Errorf("parse text response: %w", err)
	}
	if resp.Error != nil {
		return "", "", fmt.Errorf("text service error: %s", resp.Error.Message)
	}
	if resp.OutputText == "" {
		return "", "", fmt.Errorf("text service returned empty output")
	}
	return resp.OutputText, resp.ID, nil
}

type imageRequest struct {
	Prompt   string          `json:"prompt"`
	Workflow json.RawMessage `json:"workflow"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Format   string          `json:"format"`
}

type imageResponse struct {
	Images map[string][]string `json:"images"`
}

func (c *Client) GenerateImage(ctx context.Context, prompt string, width, height int) ([]byte, error) {
	body := imageRequest{
		Prompt:   prompt,
		Workflow: c.workflow,
		Width:    width,
		Height:   height,
		Format:   "base64",
	}

	respBytes, err := c.post(ctx, c.imageHTTP, c.cfg.Services.ImageURL, body)
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("parse image response: %w", err)
	}

	// The backend reports images per output node; take the first one from
	// any node that produced output.
	for _, nodeImages := range resp.Images {
		if len(nodeImages) == 0 {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(nodeImages[0])
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("no image data found in response")
}

type speechRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

type speechResponse struct {
	AudioBase64 string `json:"audio_base64"`
}

func (c *Client) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	body := speechRequest{
		Text:     text,
		Voice:    c.cfg.Audio.Voice,
		Speed:    c.cfg.Audio.Speed,
		Language: c.cfg.Audio.Language,
	}

	respBytes, err := c.post(ctx, c.speechHTTP, c.cfg.Services.SpeechURL, body)
	if err != nil {
		return nil, err
	}

	var resp speechResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("parse tts response: %w", err)
	}
	if resp.AudioBase64 == "" {
		return nil, fmt.Errorf("no audio data in tts response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("decode audio data: %w", err)
	}
	return data, nil
}

// post sends a JSON body and returns the raw response bytes. Transport
// failures and 429/5xx statuses are marked transient so retry.Caller backs
// off and tries again; other non-2xx statuses are structural.
func (c *Client) post(ctx context.Context, hc *http.Client, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "close")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("post %s: %w", url, err))
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response from %s: %w", url, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, retry.Transient(err)
		}
		log.Printf("[genclient] %v: %s", err, firstBytes(respBytes, 200))
		return nil, err
	}
	return respBytes, nil
}

func firstBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
