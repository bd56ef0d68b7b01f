package embedder

import "context"

type Option func(*Options)

type Options struct {
	ApiKey         string
	Model          string
	Location       string
	Device         string
	DocumentPrefix string
	QueryPrefix    string
	Context        context.Context
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

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithDevice(device string) Option {
	return func(o *Options) {
		o.Device = device
	}
}

// WithRolePrefixes sets the strings prepended to texts encoded as documents
// and queries respectively, e.g. "passage: " and "query: " for e5 models.
func WithRolePrefixes(document, query string) Option {
	return func(o *Options) {
		o.DocumentPrefix = document
		o.QueryPrefix = query
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Prefix returns the configured prefix for the given role.
func (o Options) Prefix(role Role) string {
	if role == RoleQuery {
		return o.QueryPrefix
	}
	return o.DocumentPrefix
}
