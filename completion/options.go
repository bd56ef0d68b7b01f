package completion

import "context"

type Option func(*Options)

type Options struct {
	ApiKey       string
	Model        string
	Endpoint     func() string
	SystemPrompt string
	Context      context.Context
}

func WithApiKey(apiKey string) Option {
	return func(o *Options) {
		o.ApiKey = apiKey
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithEndpoint takes a resolver rather than a fixed URL so runtime
// settings changes apply to the next request without a rebuild.
func WithEndpoint(endpoint func() string) Option {
	return func(o *Options) {
		o.Endpoint = endpoint
	}
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		SystemPrompt: DefaultSystemPrompt,
		Context:      context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
