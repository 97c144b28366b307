package openai

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
	providerName = "openai"

	url          = "https://api.openai.com/v1/responses"
	DefaultModel = "gpt-4"
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

// WithURL points the client at a different Responses API endpoint.
func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a client authenticated with apiKey, falling back to
// OPENAI_API_KEY when apiKey is empty.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "OPENAI_API_KEY"); err != nil {
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

// Complete sends the whole context in one request and returns the text of
// the first assistant message.
func (c *Client) Complete(ctx context.Context, messages []llms.Message, opts ...llms.CompletionOption) (string, error) {
	ctx, span := tracer.Start(ctx, "complete openai")
	defer span.End()

	options := llms.NewCompletionOptions(opts...)
	model := c.model
	if options.Model != "" {
		model = options.Model
	}

	reqBody := requestBody{
		Model:       model,
		Input:       toOpenAIMessages(messages),
		Temperature: options.Temperature,
	}
	if options.MaxTokens > 0 {
		reqBody.MaxOutputTokens = &options.MaxTokens
	}
	span.SetAttributes(
		attribute.String("request.model", model),
		attribute.Int("request.messages", len(reqBody.Input)),
	)

	text, err := c.send(ctx, reqBody)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (c *Client) send(ctx context.Context, reqBody requestBody) (string, error) {
	requestBodyBytes, err := json.Marshal(reqBody)
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
		logger.WarnContext(ctx, "openai request rejected", "status", resp.StatusCode, "error", providerErr.Message)
		return "", providerErr
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", providers.Transport(providerName, fmt.Errorf("error reading response body: %w", err))
	}

	var responseBody responseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	return responseBody.text()
}

type requestBody struct {
	Model           string          `json:"model"`
	Input           []openAIMessage `json:"input"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
}

type responseBody struct {
	Output []responseOutput `json:"output"`
}

type responseOutput struct {
	// Type is the type of the output item, only 'message' items carry text.
	Type    string            `json:"type"`
	Content []responseContent `json:"content,omitempty"`
}

type responseContent struct {
	// Type is 'output_text' or 'refusal'.
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

func (r responseBody) text() (string, error) {
	var b strings.Builder
	for _, output := range r.Output {
		if output.Type != "message" {
			continue
		}
		for _, content := range output.Content {
			switch content.Type {
			case "output_text":
				b.WriteString(content.Text)
			case "refusal":
				return "", providers.Permanent(fmt.Errorf("model refused: %s", content.Refusal))
			}
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("response contained no text")
	}
	return text, nil
}
