// Package punct adapts the external punctuation model: raw engine output in,
// paragraph-structured text out.
package punct

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"voicescribe/chunk"
	"voicescribe/stt"
)

// SentencesPerParagraph caps how many sentences are grouped into one
// paragraph after punctuation restore.
const SentencesPerParagraph = 4

// Restorer restores punctuation and capitalization in raw transcript text.
type Restorer interface {
	Restore(ctx context.Context, text string) (string, error)
}

// OpenAIRestorer drives the punctuation model through a chat completion.
type OpenAIRestorer struct {
	client *openai.Client
	model  string
}

const restorePrompt = "Restore punctuation and capitalization in the " +
	"following transcript. Do not translate, rephrase, add or remove words. " +
	"Reply with the corrected text only."

func NewOpenAIRestorer(apiKey, model string) *OpenAIRestorer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIRestorer{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (r *OpenAIRestorer) Restore(ctx context.Context, text string) (string, error) {
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: restorePrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("restore punctuation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("restore punctuation: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Passthrough leaves the text as-is. Used when no punctuation model is
// configured; paragraph regrouping still applies.
type Passthrough struct{}

func (Passthrough) Restore(_ context.Context, text string) (string, error) {
	return text, nil
}

// Formatter is the formatting adapter: it runs the restorer and regroups the
// result into paragraphs. Any restorer failure degrades to the raw text.
type Formatter struct {
	restorer Restorer
	logger   *log.Logger
}

func NewFormatter(restorer Restorer, logger *log.Logger) *Formatter {
	return &Formatter{restorer: restorer, logger: logger}
}

func (f *Formatter) Format(ctx context.Context, text string) string {
	if text == "" || text == stt.Placeholder {
		return text
	}
	restored, err := f.restorer.Restore(ctx, text)
	if err != nil {
		f.logger.Error("format text", "error", err)
		return text
	}
	if restored == "" {
		return text
	}
	return Paragraphs(restored)
}

// Paragraphs regroups sentence-delimited text into paragraphs of up to
// SentencesPerParagraph sentences, separated by blank lines.
func Paragraphs(text string) string {
	sentences := chunk.Sentences(text)
	var paragraphs []string
	var current []string
	for _, s := range sentences {
		current = append(current, s)
		if len(current) >= SentencesPerParagraph {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return strings.Join(paragraphs, "\n\n")
}
