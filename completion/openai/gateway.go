package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
)

type openAIGateway struct {
	options completion.Options
	client  *openai.Client
}

func (g *openAIGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.options.Model,
		Messages: g.convert(messages),
	}

	rsp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return "", fmt.Errorf("%w: no response from OpenAI", fault.ErrUpstream)
	}

	return rsp.Choices[0].Message.Content, nil
}

func (g *openAIGateway) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	req := openai.ChatCompletionRequest{
		Model:    g.options.Model,
		Messages: g.convert(messages),
		Stream:   true,
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	events := make(chan completion.StreamEvent)

	go func() {
		defer close(events)
		defer stream.Close()

		for {
			rsp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				g.send(ctx, events, completion.StreamEvent{Done: true})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				g.send(ctx, events, completion.StreamEvent{
					Err: fmt.Errorf("%w: %v", fault.ErrUpstream, err),
				})
				return
			}

			if len(rsp.Choices) == 0 {
				continue
			}

			delta := rsp.Choices[0].Delta.Content
			if len(delta) == 0 {
				continue
			}

			if !g.send(ctx, events, completion.StreamEvent{Data: delta}) {
				return
			}
		}
	}()

	return events, nil
}

func (g *openAIGateway) send(ctx context.Context, events chan<- completion.StreamEvent, event completion.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *openAIGateway) convert(messages []completion.Message) []openai.ChatCompletionMessage {
	messages = completion.EnsureSystem(messages, g.options.SystemPrompt)

	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return converted
}

func NewGateway(opts ...completion.Option) completion.Gateway {
	options := completion.NewOptions(opts...)

	g := &openAIGateway{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	if options.Endpoint != nil {
		config.BaseURL = options.Endpoint()
	}

	g.client = openai.NewClientWithConfig(config)

	return g
}
