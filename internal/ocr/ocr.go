// Package ocr extracts text from label photographs via the Vision API.
package ocr

import (
	"context"
	"fmt"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/gcp"
	"github.com/cosmescan/backend/internal/logger"
)

// Extractor turns an image reference into recognized text. An image with no
// recognizable text yields "" without error.
type Extractor interface {
	ExtractText(ctx context.Context, imageURI string) (string, error)
	Close() error
}

type visionExtractor struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

// NewVisionExtractor opens a Vision API text-detection client.
func NewVisionExtractor(ctx context.Context, credentialsFile string, log *logger.Logger) (Extractor, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, gcp.ClientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &visionExtractor{
		log:    log.With("service", "ocr.Extractor"),
		client: client,
	}, nil
}

func (e *visionExtractor) ExtractText(ctx context.Context, imageURI string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{
					Source: &visionpb.ImageSource{ImageUri: imageURI},
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: vision annotate: %v", errs.ErrUpstreamUnavailable, err)
	}
	if len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return "", fmt.Errorf("%w: vision annotate: %s", errs.ErrUpstreamUnavailable, r0.Error.Message)
	}
	if r0.FullTextAnnotation == nil {
		e.log.Info("no text detected", "uri", imageURI)
		return "", nil
	}

	text := r0.FullTextAnnotation.Text
	e.log.Debug("text detected", "uri", imageURI, "chars", len(text))
	return text, nil
}

func (e *visionExtractor) Close() error {
	return e.client.Close()
}
