package anthropic

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
)

type anthropicGateway struct {
	options completion.Options
	client  *anthropic.Client
}

func (g *anthropicGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	rsp, err := g.client.Messages.New(ctx, g.convert(messages))
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	result := b.String()
	if len(result) == 0 {
		return "", fmt.Errorf("%w: no response from Anthropic", fault.ErrUpstream)
	}

	return result, nil
}

func (g *anthropicGateway) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.convert(messages))

	events := make(chan completion.StreamEvent)

	go func() {
		defer close(events)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()

			deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}

			text, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta)
			if !ok || len(text.Text) == 0 {
				continue
			}

			if !g.send(ctx, events, completion.StreamEvent{Data: text.Text}) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			g.send(ctx, events, completion.StreamEvent{
				Err: fmt.Errorf("%w: %v", fault.ErrUpstream, err),
			})
			return
		}

		g.send(ctx, events, completion.StreamEvent{Done: true})
	}()

	return events, nil
}

func (g *anthropicGateway) send(ctx context.Context, events chan<- completion.StreamEvent, event completion.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *anthropicGateway) convert(messages []completion.Message) anthropic.MessageNewParams {
	messages = completion.EnsureSystem(messages, g.options.SystemPrompt)

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.options.Model),
		MaxTokens: 1024,
	}

	for _, msg := range messages {
		switch msg.Role {
		case completion.RoleSystem:
			req.System = append(req.System, anthropic.TextBlockParam{Text: msg.Content})
		case completion.RoleAssistant:
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			req.Messages = append(req.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	return req
}

func NewGateway(opts ...completion.Option) completion.Gateway {
	options := completion.NewOptions(opts...)

	g := &anthropicGateway{
		options: options,
	}

	client := anthropic.NewClient(
		anthropicopt.WithAPIKey(options.ApiKey),
	)

	g.client = &client

	return g
}
