package genclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"slidecast/config"
	"slidecast/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Services.TextURL = srv.URL
	cfg.Services.ImageURL = srv.URL
	cfg.Services.SpeechURL = srv.URL
	return New(cfg, "sk-test", json.RawMessage(`{"3":{"_meta":{"title":"prompt"}}}`)), srv
}

func TestGenerateTextChainsContinuation(t *testing.T) {
	var gotPrevID string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrevID, _ = req["previous_response_id"].(string)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          "resp-2",
			"output_text": "Once upon a tide.",
		})
	})

	text, id, err := c.GenerateText(context.Background(), "continue", "resp-1")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "Once upon a tide." || id != "resp-2" {
		t.Errorf("got (%q, %q)", text, id)
	}
	if gotPrevID != "resp-1" {
		t.Errorf("previous_response_id = %q, want resp-1", gotPrevID)
	}
}

func TestGenerateTextServiceError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "prompt rejected"},
		})
	})

	_, _, err := c.GenerateText(context.Background(), "p", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "prompt rejected") {
		t.Errorf("error should carry service message, got %v", err)
	}
	if retry.IsTransient(err) {
		t.Error("service-reported error is structural, not transient")
	}
}

func TestGenerateImagePicksFirstNonEmptyNode(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req imageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Width != 1920 || req.Height != 1080 || req.Format != "base64" {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Workflow) == 0 {
			t.Error("workflow not embedded in request")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"images": map[string][]string{
				"7": {},
				"9": {payload},
			},
		})
	})

	data, err := c.GenerateImage(context.Background(), "a stormy sea", 1920, 1080)
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("decoded image = %q", data)
	}
}

func TestGenerateImageNoData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"images": map[string][]string{}})
	})
	if _, err := c.GenerateImage(context.Background(), "p", 1280, 720); err == nil {
		t.Fatal("expected error for empty image response")
	}
}

func TestGenerateSpeech(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req speechRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Voice != "am_michael" || req.Speed != 1 || req.Language != "a" {
			t.Errorf("unexpected tts request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("wav-bytes")),
		})
	})

	data, err := c.GenerateSpeech(context.Background(), "hello")
	if err != nil {
		t.Fatalf("GenerateSpeech: %v", err)
	}
	if string(data) != "wav-bytes" {
		t.Errorf("decoded audio = %q", data)
	}
}

func TestGenerateSpeechMissingAudio(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	_, err := c.GenerateSpeech(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error when audio_base64 missing")
	}
	if retry.IsTransient(err) {
		t.Error("missing field is structural, not transient")
	}
}

func TestServerErrorsAreTransient(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	_, err := c.GenerateSpeech(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !retry.IsTransient(err) {
		t.Errorf("HTTP 503 should be transient, got %v", err)
	}
}

func TestClientErrorsAreStructural(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	_, err := c.GenerateImage(context.Background(), "p", 1280, 720)
	if err == nil {
		t.Fatal("expected error")
	}
	if retry.IsTransient(err) {
		t.Errorf("HTTP 400 should be structural, got %v", err)
	}
}
