// Package stt adapts the external speech-to-text engine. The engine itself
// is a black box reached over an OpenAI-compatible transcription endpoint;
// this package owns the single active engine handle, its reload lifecycle,
// and the bounded worker pool that keeps slow transcriptions off the event
// loop.
package stt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Placeholder stands in for empty or near-empty engine output so delivery
// never edits a message down to nothing.
const Placeholder = "…"

// Models is the closed list of accepted model names.
var Models = []string{"tiny", "base", "small", "medium", "large-v2", "large-v3"}

func KnownModel(name string) bool {
	for _, m := range Models {
		if m == name {
			return true
		}
	}
	return false
}

// Engine turns a recorded audio file into raw, unformatted text.
type Engine interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Close() error
}

// Loader builds an Engine for a model name. The Service calls it on startup
// and on every model switch.
type Loader func(model string) (Engine, error)

// WhisperEngine talks to a whisper server exposing the OpenAI audio
// transcription API.
type WhisperEngine struct {
	client   *openai.Client
	model    string
	language string
}

func NewWhisperEngine(baseURL, apiKey, model, language string) *WhisperEngine {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &WhisperEngine{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
	}
}

func (e *WhisperEngine) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: path,
		Language: e.language,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (e *WhisperEngine) Close() error { return nil }
