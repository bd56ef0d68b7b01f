package completion

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultSystemPrompt = "You are a helpful assistant. Answer using the provided reference material when it is relevant, and say so when it is not."

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamEvent carries one streamed payload. Done and Err are terminal;
// after either, no further events are sent.
type StreamEvent struct {
	Data string
	Done bool
	Err  error
}

type Gateway interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
}

type ModelDescriptor struct {
	Id      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}

// ModelInformer is implemented by gateways that can report which models
// their backend is serving.
type ModelInformer interface {
	ModelInfo(ctx context.Context) ([]ModelDescriptor, error)
}

// EnsureSystem prepends prompt as a system message unless the
// conversation already opens with one.
func EnsureSystem(messages []Message, prompt string) []Message {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, messages...)
}
