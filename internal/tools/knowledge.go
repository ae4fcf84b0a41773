package tools

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// KnowledgeSearcher retrieves the most relevant knowledge-base passages for
// a query. *knowledge.Store satisfies it.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]string, error)
}

// NewKnowledgeQuery builds the security_kb_query capability backed by the
// curated cybersecurity knowledge base.
func NewKnowledgeQuery(searcher KnowledgeSearcher, topK int) *Capability {
	if topK <= 0 {
		topK = 4
	}

	return &Capability{
		name: "security_kb_query",
		description: "Useful for answering questions about cybersecurity standards, frameworks (NIST, CERT), " +
			"policies, compliance, and best practices. " +
			"Use this tool when the user asks for general guidance rather than specific IOC analysis.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "The question to answer from the knowledge base",
				},
			},
			Required: []string{"query"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}

			passages, err := searcher.Search(ctx, query, topK)
			if err != nil {
				return nil, fmt.Errorf("error retrieving best practices: %w", err)
			}
			if len(passages) == 0 {
				return textResult("No relevant guidance found in the knowledge base."), nil
			}
			return textResult(strings.Join(passages, "\n\n")), nil
		},
	}
}
