package multimodal

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ingestpipe/internal/config"
)

var errVisionDisabled = errors.New("vision assist not configured")

// VisionClient turns an image into a text description by
// sending it inline to a vision-capable model, the same base64-data-URL
// pattern the document-description tool uses against an image file. The
// description is what actually gets embedded; there is no dedicated
// image-embedding model in reach here, so a text description standing in
// for the image is the simplification this worker makes.
type VisionClient struct {
	sdk   anthropic.Client
	model string
}

// NewVisionClient returns nil when no API key is configured, so an image
// job against a disabled vision path fails loudly (recorded as rejected)
// rather than silently producing a zero vector.
func NewVisionClient(cfg config.VisionAssistConfig) *VisionClient {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &VisionClient{sdk: anthropic.NewClient(opts...), model: model}
}

// Describe asks the model for a factual description of the image, to be
// embedded in place of the raw pixels.
func (c *VisionClient) Describe(ctx context.Context, mediaType string, data []byte) (string, error) {
	if c == nil {
		return "", errVisionDisabled
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{{
			Text: "Describe this image factually and completely: objects, text, layout, and any data visible. Do not speculate.",
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)),
			),
		},
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			out.WriteString(text.Text)
		}
	}
	return out.String(), nil
}
