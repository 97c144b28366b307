package llms

import "github.com/koscakluka/ema-screening/internal/utils"

type CompletionOptions struct {
	// Model overrides the model the client was configured with.
	Model     string
	MaxTokens int
	// Temperature is nil when the provider default should be used.
	Temperature *float64
}

type CompletionOption func(*CompletionOptions)

func WithModel(model string) CompletionOption {
	return func(o *CompletionOptions) { o.Model = model }
}

func WithMaxTokens(maxTokens int) CompletionOption {
	return func(o *CompletionOptions) { o.MaxTokens = maxTokens }
}

func WithTemperature(temperature float64) CompletionOption {
	return func(o *CompletionOptions) { o.Temperature = utils.Ptr(temperature) }
}

func NewCompletionOptions(opts ...CompletionOption) CompletionOptions {
	options := CompletionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
