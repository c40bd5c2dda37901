package chat

// gemini_image.go sends one photo plus a text instruction to a Gemini image
// model and returns the first image part of the answer.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fpang/muted-image-editor/internal/editor"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// KeyFunc resolves the API key for a call.
type KeyFunc func(ctx context.Context) (string, error)

// StaticKey returns a KeyFunc that always yields key.
func StaticKey(key string) KeyFunc {
	return func(context.Context) (string, error) { return key, nil }
}

// EditError is a failed edit call carrying the message the API returned.
type EditError struct {
	Code    int
	Status  string
	Message string
	Err     error
}

func (e *EditError) Error() string {
	return e.Message
}

func (e *EditError) Unwrap() error {
	return e.Err
}

// GeminiImageClient edits images with a Gemini image model. The API key is
// resolved on every call, so a rotated key takes effect without a restart;
// the SDK client is rebuilt only when the key changes.
type GeminiImageClient struct {
	model string
	keys  KeyFunc
	opts  []ClientOption

	mu        sync.Mutex
	client    *genai.Client
	clientKey string
}

var _ editor.Invoker = (*GeminiImageClient)(nil)

// NewGeminiImageClient creates an image edit client for model.
func NewGeminiImageClient(model string, keys KeyFunc, opts ...ClientOption) *GeminiImageClient {
	if model == "" {
		model = DefaultImageModelName
	}
	return &GeminiImageClient{model: model, keys: keys, opts: opts}
}

// Model returns the model ID edits are sent to.
func (c *GeminiImageClient) Model() string {
	return c.model
}

func (c *GeminiImageClient) clientFor(ctx context.Context) (*genai.Client, error) {
	key, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.clientKey == key {
		return c.client, nil
	}
	client, err := NewGeminiClient(ctx, key, c.opts...)
	if err != nil {
		return nil, err
	}
	c.client = client
	c.clientKey = key
	return client, nil
}

// Edit implements editor.Invoker. The request carries the image as inline
// data followed by the instruction, and asks for an image-only response.
func (c *GeminiImageClient) Edit(ctx context.Context, img editor.Image, instruction string) (editor.Image, error) {
	client, err := c.clientFor(ctx)
	if err != nil {
		return editor.Image{}, err
	}

	startTime := time.Now()
	log.Info().
		Str("model", c.model).
		Int("image_bytes", len(img.Data)).
		Str("image_mime", img.MIMEType).
		Int("instruction_length", len(instruction)).
		Msg("Sending image to Gemini for editing")

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}},
			{Text: instruction},
		},
	}}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	duration := time.Since(startTime)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			log.Error().
				Int("code", apiErr.Code).
				Str("status", apiErr.Status).
				Str("message", truncateString(apiErr.Message, 500)).
				Dur("duration", duration).
				Msg("Gemini image editing API returned error")
			return editor.Image{}, &EditError{
				Code:    apiErr.Code,
				Status:  apiErr.Status,
				Message: apiErr.Message,
				Err:     err,
			}
		}
		log.Error().Err(err).Dur("duration", duration).Msg("Gemini image editing request failed")
		return editor.Image{}, fmt.Errorf("image edit request failed: %w", err)
	}

	result, text, ok := firstImagePart(resp)
	if !ok {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			log.Warn().
				Str("block_reason", string(resp.PromptFeedback.BlockReason)).
				Msg("Gemini blocked the edit request")
		}
		log.Warn().
			Str("text", truncateString(text, 200)).
			Dur("duration", duration).
			Msg("Gemini response contained no image")
		return editor.Image{}, fmt.Errorf("%w (text: %s)", editor.ErrNoImageData, truncateString(text, 200))
	}

	log.Info().
		Int("output_bytes", len(result.Data)).
		Str("output_mime", result.MIMEType).
		Dur("duration", duration).
		Msg("Gemini image editing complete")

	return result, nil
}

// firstImagePart returns the first inline image of the first candidate and
// any text seen before it.
func firstImagePart(resp *genai.GenerateContentResponse) (editor.Image, string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return editor.Image{}, "", false
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return editor.Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, text.String(), true
		}
		text.WriteString(part.Text)
	}
	return editor.Image{}, text.String(), false
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
