package http

import (
	"context"
	"log/slog"
)

type Option func(*Options)

type Options struct {
	Address        string
	AllowedOrigins []string
	Logger         *slog.Logger
	Context        context.Context
}

func WithAddress(address string) Option {
	return func(o *Options) {
		o.Address = address
	}
}

func WithAllowedOrigins(origins ...string) Option {
	return func(o *Options) {
		o.AllowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Address: ":8000",
		Logger:  slog.Default(),
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
