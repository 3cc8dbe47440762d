// Package openai provides the single client used for every generative
// capability: chat completion, embeddings, vision OCR and audio
// transcription.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"mailcoach/internal/config"
)

// Client wraps the OpenAI API client with the timeouts from configuration.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel openai.EmbeddingModel
	timeout    time.Duration
}

// NewClient creates a new OpenAI client. A missing API key is a
// configuration failure and is surfaced here, at construction time, rather
// than deferred into a background task.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("no OpenAI provider configured: set OPENAI_API_KEY or enable OFFLINE_MODE")
	}
	return &Client{
		api:        openai.NewClient(cfg.OpenAIKey),
		chatModel:  string(openai.GPT4oMini),
		embedModel: openai.SmallEmbedding3,
		timeout:    time.Duration(cfg.OpenAITimeout) * time.Second,
	}, nil
}

// CreateChatCompletion generates a chat completion for the given messages.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete sends a single user prompt and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}, maxTokens, temperature)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates embeddings for the given texts. The embedding model is
// deterministic for identical input.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.embedModel,
	})
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}
	return embeddings, nil
}

// ReadImageText performs OCR on an image through the vision-capable chat
// model and returns the extracted text.
func (c *Client) ReadImageText(ctx context.Context, imageData []byte, mimeType string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(imageData))

	resp, err := c.CreateChatCompletion(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: "Extract and return all visible text in the provided image. Return the text only.",
				},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
				},
			},
		},
	}, 2048, 0)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty vision response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Transcribe converts an audio file to text via the speech-to-text model.
func (c *Client) Transcribe(ctx context.Context, filePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: filePath,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
