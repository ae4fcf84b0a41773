// Package gemini wraps the google.golang.org/genai SDK behind the narrow
// surfaces the rest of the application consumes: a streaming generation
// call for the dialogue loop and an embedding call for the knowledge base.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/bytesec/byte/internal/log"
)

var (
	// ErrMissingAPIKey indicates no API key was provided.
	ErrMissingAPIKey = errors.New("gemini: missing API key")

	// ErrEmptyEmbedding indicates the embedder returned no vectors.
	ErrEmptyEmbedding = errors.New("gemini: empty embedding response")
)

// EmbeddingDimension is the output dimensionality requested from the
// embedding model. It must match the vector column width in the knowledge
// base schema.
const EmbeddingDimension = 768

// Config holds the client settings.
type Config struct {
	APIKey        string
	Model         string
	EmbedderModel string
	Logger        log.Logger
}

// Client is a thin wrapper over the genai SDK client.
type Client struct {
	client        *genai.Client
	model         string
	embedderModel string
	logger        log.Logger
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{
		client:        client,
		model:         cfg.Model,
		embedderModel: cfg.EmbedderModel,
		logger:        cfg.Logger,
	}, nil
}

// Model returns the configured generation model name.
func (c *Client) Model() string {
	return c.model
}

// GenerateStream starts a streaming generation call and returns the
// response chunk sequence. Errors surface as the second element of the
// sequence; iteration stops at the first error.
func (c *Client) GenerateStream(
	ctx context.Context,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) iter.Seq2[*genai.GenerateContentResponse, error] {
	c.logger.Debug("starting generation stream",
		"model", c.model,
		"contents", len(contents))
	return c.client.Models.GenerateContentStream(ctx, c.model, contents, cfg)
}

// Embed converts text into a vector using the configured embedding model,
// truncated to EmbeddingDimension values.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(EmbeddingDimension)
	resp, err := c.client.Models.EmbedContent(ctx, c.embedderModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Values, nil
}
