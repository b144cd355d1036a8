package gemini

import (
	"context"
	"encoding/base64"

	"google.golang.org/genai"

	"github.com/vango-go/portfolio/pkg/core"
)

const (
	imageMIMEType    = "image/jpeg"
	imageAspectRatio = "16:9"
)

// ImageModel returns the configured image model name.
func (c *Client) ImageModel() string {
	return c.cfg.ImageModel
}

// GenerateImage requests one 16:9 JPEG for prompt and returns it as a data URI.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	gc, err := c.client(ctx)
	if err != nil {
		return "", err
	}

	resp, err := gc.Models.GenerateImages(ctx, c.cfg.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: imageMIMEType,
		AspectRatio:    imageAspectRatio,
	})
	if err != nil {
		return "", core.NewImageGenerationError("generate image: "+err.Error(), err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return "", core.NewImageGenerationError("no image returned", nil)
	}
	img := resp.GeneratedImages[0].Image
	if img == nil || len(img.ImageBytes) == 0 {
		reason := resp.GeneratedImages[0].RAIFilteredReason
		if reason == "" {
			reason = "empty image payload"
		}
		return "", core.NewImageGenerationError(reason, nil)
	}
	mime := img.MIMEType
	if mime == "" {
		mime = imageMIMEType
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.ImageBytes), nil
}
