package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	genaiopt "google.golang.org/api/option"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
)

type googleGateway struct {
	options completion.Options
	client  *genai.Client
}

func (g *googleGateway) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	session, last, err := g.session(messages)
	if err != nil {
		return "", err
	}

	rsp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("%w: %v", fault.ErrUpstream, err)
	}

	result := flatten(rsp)
	if len(result) == 0 {
		return "", fmt.Errorf("%w: no response from Google", fault.ErrUpstream)
	}

	return result, nil
}

func (g *googleGateway) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	session, last, err := g.session(messages)
	if err != nil {
		return nil, err
	}

	iter := session.SendMessageStream(ctx, genai.Text(last))

	events := make(chan completion.StreamEvent)

	go func() {
		defer close(events)

		for {
			rsp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
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

			delta := flatten(rsp)
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

func (g *googleGateway) send(ctx context.Context, events chan<- completion.StreamEvent, event completion.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// session maps the conversation onto a genai chat: system messages become the
// system instruction, prior turns become history, and the final user message
// is returned for sending.
func (g *googleGateway) session(messages []completion.Message) (*genai.ChatSession, string, error) {
	messages = completion.EnsureSystem(messages, g.options.SystemPrompt)

	if len(messages) == 0 || messages[len(messages)-1].Role != completion.RoleUser {
		return nil, "", fmt.Errorf("%w: conversation must end with a user message", fault.ErrEmptyInput)
	}

	model := g.client.GenerativeModel(g.options.Model)

	var system strings.Builder
	history := []*genai.Content{}

	for _, msg := range messages[:len(messages)-1] {
		switch msg.Role {
		case completion.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(msg.Content)
		case completion.RoleAssistant:
			history = append(history, &genai.Content{
				Role:  "model",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		default:
			history = append(history, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}

	if system.Len() > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system.String())},
		}
	}

	session := model.StartChat()
	session.History = history

	return session, messages[len(messages)-1].Content, nil
}

func flatten(rsp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range rsp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return b.String()
}

func NewGateway(opts ...completion.Option) completion.Gateway {
	options := completion.NewOptions(opts...)

	g := &googleGateway{
		options: options,
	}

	client, err := genai.NewClient(
		context.Background(),
		genaiopt.WithAPIKey(options.ApiKey),
	)
	if err != nil {
		panic(err)
	}

	g.client = client

	return g
}
