package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/w-h-a/spinach/completion"
	"github.com/w-h-a/spinach/fault"
)

// Service relays conversations to the completion backend without inspecting
// or buffering the replies.
type Service struct {
	gateway completion.Gateway
}

func (s *Service) Respond(ctx context.Context, messages []completion.Message) (string, error) {
	if err := validate(messages); err != nil {
		return "", err
	}

	return s.gateway.Complete(ctx, messages)
}

func (s *Service) Stream(ctx context.Context, messages []completion.Message) (<-chan completion.StreamEvent, error) {
	if err := validate(messages); err != nil {
		return nil, err
	}

	return s.gateway.Stream(ctx, messages)
}

func validate(messages []completion.Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", fault.ErrEmptyInput)
	}

	last := messages[len(messages)-1]
	if len(strings.TrimSpace(last.Content)) == 0 {
		return fmt.Errorf("%w: last message must not be empty", fault.ErrEmptyInput)
	}

	return nil
}

func New(g completion.Gateway) *Service {
	if g == nil {
		panic("gateway is required")
	}

	return &Service{
		gateway: g,
	}
}
