package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-screening/core/llms"
	"github.com/koscakluka/ema-screening/core/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName = "groq"

	url          = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.3-70b-versatile"
)

type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a client authenticated with apiKey, falling back to
// GROQ_API_KEY when apiKey is empty.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "GROQ_API_KEY"); err != nil {
			return nil, err
		}
	}

	client := &Client{
		apiKey:     apiKey,
		model:      DefaultModel,
		url:        url,
		httpClient: providers.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Complete(ctx context.Context, messages []llms.Message, opts ...llms.CompletionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "complete groq")
	defer span.End()

	options := llms.NewCompletionOptions(opts...)
	reqBody := requestBody{
		Model:       c.modelFor(options),
		Messages:    toMessages(messages),
		Temperature: options.Temperature,
	}
	if options.MaxTokens > 0 {
		reqBody.MaxCompletionTokens = &options.MaxTokens
	}
	span.SetAttributes(attribute.String("request.model", reqBody.Model))

	response, err := c.send(ctx, reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text := strings.TrimSpace(response)
	if text == "" {
		err := fmt.Errorf("response contained no text")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (c *Client) modelFor(options llms.CompletionOptions) string {
	if options.Model != "" {
		return options.Model
	}
	return c.model
}

// send posts any chat completion body and returns the content of the first
// choice.
func (c *Client) send(ctx context.Context, body any) (string, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", providers.Transport(providerName, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		providerErr := providers.FromResponse(providerName, resp)
		logger.WarnContext(ctx, "groq request rejected", "status", resp.StatusCode, "error", providerErr.Message)
		return "", providerErr
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.Transport(providerName, fmt.Errorf("error reading response body: %w", err))
	}

	var responseBody responseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if len(responseBody.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}

	return responseBody.Choices[0].Message.Content, nil
}

type requestBody struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
}

type responseBody struct {
	Choices []struct {
		Message struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}
