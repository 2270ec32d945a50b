// Package analysis evaluates a scanned product against a user profile with
// a generative model and parses the semi-structured response.
package analysis

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"

	"github.com/cosmescan/backend/internal/config"
	"github.com/cosmescan/backend/internal/errs"
	"github.com/cosmescan/backend/internal/gcp"
	"github.com/cosmescan/backend/internal/logger"
)

// Engine produces the free-form evaluation text for one scan. The response
// is expected, not guaranteed, to be JSON.
type Engine interface {
	Evaluate(ctx context.Context, ocrText, profileText, barcode string) (string, error)
	Close() error
}

type vertexEngine struct {
	log    *logger.Logger
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertexEngine connects to Vertex AI and binds the configured model.
func NewVertexEngine(ctx context.Context, cfg config.Config, log *logger.Logger) (Engine, error) {
	if cfg.Analysis.Project == "" {
		return nil, fmt.Errorf("analysis project is not configured")
	}

	client, err := genai.NewClient(ctx, cfg.Analysis.Project, cfg.Analysis.Location,
		gcp.ClientOptions(cfg.Analysis.CredentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}

	return &vertexEngine{
		log:    log.With("service", "analysis.Engine", "model", cfg.Analysis.Model),
		client: client,
		model:  client.GenerativeModel(cfg.Analysis.Model),
	}, nil
}

func (e *vertexEngine) Evaluate(ctx context.Context, ocrText, profileText, barcode string) (string, error) {
	prompt := buildPrompt(ocrText, profileText, barcode)

	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %v", errs.ErrUpstreamUnavailable, err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no response generated", errs.ErrUpstreamUnavailable)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no content in response", errs.ErrUpstreamUnavailable)
	}

	text, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("%w: unexpected response part %T", errs.ErrUpstreamUnavailable, candidate.Content.Parts[0])
	}

	e.log.Debug("evaluation generated", "barcode", barcode, "chars", len(text))
	return string(text), nil
}

func (e *vertexEngine) Close() error {
	return e.client.Close()
}
