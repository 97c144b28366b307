package heygen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-screening/core/avatar"
	"github.com/koscakluka/ema-screening/core/providers"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	providerName = "heygen"

	baseURL = "https://api.heygen.com/v1"

	DefaultAvatarID = "Anna_public_3_20240108"
	DefaultVoiceID  = "1bd001e7e50f421d891986aad5158bc8"
	DefaultQuality  = "high"

	codeSuccess = 100
)

type Client struct {
	apiKey     string
	baseURL    string
	avatarID   string
	voiceID    string
	quality    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithAvatarID(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.avatarID = id
		}
	}
}

func WithVoiceID(id string) ClientOption {
	return func(c *Client) {
		if id != "" {
			c.voiceID = id
		}
	}
}

func WithQuality(quality string) ClientOption {
	return func(c *Client) {
		if quality != "" {
			c.quality = quality
		}
	}
}

// NewClient creates a client authenticated with apiKey, falling back to
// HEYGEN_API_KEY when apiKey is empty.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var err error
		if apiKey, err = providers.APIKeyFromEnv(providerName, "HEYGEN_API_KEY"); err != nil {
			return nil, err
		}
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		avatarID:   DefaultAvatarID,
		voiceID:    DefaultVoiceID,
		quality:    DefaultQuality,
		httpClient: providers.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ avatar.Client = (*Client)(nil)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type newSessionRequest struct {
	Quality    string `json:"quality"`
	AvatarName string `json:"avatar_name"`
	Voice      struct {
		VoiceID string `json:"voice_id"`
	} `json:"voice"`
}

type newSessionResponse struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
	URL         string `json:"url"`
}

func (c *Client) CreateSession(ctx context.Context) (avatar.Handle, error) {
	ctx, span := tracer.Start(ctx, "create avatar session")
	defer span.End()
	span.SetAttributes(attribute.String("avatar.id", c.avatarID))

	request := newSessionRequest{Quality: c.quality, AvatarName: c.avatarID}
	request.Voice.VoiceID = c.voiceID

	var response newSessionResponse
	if err := c.call(ctx, "streaming.new", request, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return avatar.Handle{}, err
	}
	if response.SessionID == "" {
		err := providers.Transport(providerName, fmt.Errorf("response contained no session id"))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return avatar.Handle{}, err
	}

	logger.InfoContext(ctx, "avatar session created", "avatar_session_id", response.SessionID)
	return avatar.Handle{ID: response.SessionID, Token: response.AccessToken, URL: response.URL}, nil
}

func (c *Client) SendText(ctx context.Context, handle avatar.Handle, text string) (bool, error) {
	ctx, span := tracer.Start(ctx, "send avatar text")
	defer span.End()
	span.SetAttributes(attribute.String("avatar.session_id", handle.ID), attribute.Int("text.length", len(text)))

	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	request := struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
		TaskType  string `json:"task_type"`
	}{SessionID: handle.ID, Text: text, TaskType: "repeat"}

	err := c.call(ctx, "streaming.task", request, nil)
	var declined *declinedError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &declined):
		logger.WarnContext(ctx, "avatar declined task", "avatar_session_id", handle.ID, "code", declined.code, "message", declined.message)
		return false, nil
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
}

func (c *Client) StopSession(ctx context.Context, handle avatar.Handle) error {
	ctx, span := tracer.Start(ctx, "stop avatar session")
	defer span.End()
	span.SetAttributes(attribute.String("avatar.session_id", handle.ID))

	request := struct {
		SessionID string `json:"session_id"`
	}{SessionID: handle.ID}

	if err := c.call(ctx, "streaming.stop", request, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// call posts body to the endpoint and decodes the data of a successful
// envelope into out, when out is not nil.
func (c *Client) call(ctx context.Context, endpoint string, body any, out any) error {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.Transport(providerName, fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		providerErr := providers.FromResponse(providerName, resp)
		logger.WarnContext(ctx, "heygen request rejected", "endpoint", endpoint, "status", resp.StatusCode, "error", providerErr.Message)
		return providerErr
	}

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.Transport(providerName, fmt.Errorf("error reading response body: %w", err))
	}

	var response envelope
	if err := json.Unmarshal(respBodyBytes, &response); err != nil {
		return fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if response.Code != codeSuccess {
		return providers.Permanent(&declinedError{code: response.Code, message: response.Message})
	}

	if out != nil && len(response.Data) > 0 {
		if err := json.Unmarshal(response.Data, out); err != nil {
			return fmt.Errorf("error unmarshalling response data: %w", err)
		}
	}
	return nil
}
