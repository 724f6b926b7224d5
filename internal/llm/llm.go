package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pavelanni/mocktest/internal/llm/prompts"
	"github.com/pavelanni/mocktest/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.7,
	}
}

// Open asks the model to generate an exam for req and streams the
// completion text. The channel is closed when the completion ends, on a
// stream error or when ctx is cancelled. Only topic exams are supported;
// document and web exams need an upstream generator.
func (c *Client) Open(ctx context.Context, req model.GenerationRequest) (<-chan string, error) {
	if req.Mode != "" && req.Mode != model.ModeTopic {
		return nil, fmt.Errorf("%w by the LLM client: %s", model.ErrUnsupportedMode, req.Mode)
	}
	messages, err := buildMessages(req)
	if err != nil {
		return nil, err
	}

	stream, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM stream call: %w", err)
	}
	slog.Info("LLM generation started", "model", c.model, "topic", req.Topic, "total_questions", req.TotalQuestions)

	out := make(chan string)
	go func() {
		defer close(out)
		defer stream.Close()
		deltas := 0
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				slog.Debug("LLM stream complete", "deltas", deltas)
				return
			}
			if err != nil {
				slog.Error("LLM stream failed", "deltas", deltas, "error", err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			deltas++
			select {
			case out <- resp.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func buildMessages(req model.GenerationRequest) ([]openai.ChatCompletionMessage, error) {
	system, err := prompts.System()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	user, err := prompts.BuildGenerate(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: user},
	}, nil
}
