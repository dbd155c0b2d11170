package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// WhisperAPI transcribes through an OpenAI-compatible transcription endpoint.
type WhisperAPI struct {
	client   openai.Client
	model    string
	language string
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey   string
	BaseURL  string        // Optional, defaults to OpenAI's API
	Model    string        // Optional, defaults to "whisper-1"
	Language string        // Optional, auto-detect when empty
	Timeout  time.Duration // Optional per-request timeout
}

// NewWhisperAPI creates a WhisperAPI backend. A missing key wraps
// ErrModelLoading since no transcription can ever succeed.
func NewWhisperAPI(cfg WhisperAPIConfig) (*WhisperAPI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrModelLoading)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AudioModelWhisper1)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &WhisperAPI{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (w *WhisperAPI) Name() string { return "whisper-api" }

// Transcribe uploads samples as a 16-bit WAV file. HTTP failures are
// reported as a *TranscriptionError carrying the status code.
func (w *WhisperAPI) Transcribe(ctx context.Context, samples []float32) (*TranscribeResult, error) {
	tmpDir, err := os.MkdirTemp("", "vocal-liquid-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	audioPath := filepath.Join(tmpDir, "audio.wav")
	if err := writeWAV(audioPath, samples, SampleRate); err != nil {
		return nil, err
	}
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(w.model),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &TranscriptionError{Code: apiErr.StatusCode, Detail: apiErr.Message}
		}
		return nil, &TranscriptionError{Code: -1, Detail: err.Error()}
	}

	return &TranscribeResult{
		Text:     resp.Text,
		Language: w.language,
	}, nil
}

func (w *WhisperAPI) Close() error {
	return nil
}
