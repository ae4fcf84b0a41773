package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultPhishTankBaseURL is the production PhishTank check endpoint.
const DefaultPhishTankBaseURL = "https://checkurl.phishtank.com/checkurl/"

type phishTankResults struct {
	InDatabase      bool   `json:"in_database"`
	ValidPhish      bool   `json:"valid_phish"`
	PhishDetailPage string `json:"phish_detail_page"`
}

// NewPhishTank builds the phishtank_url_check capability. The API key is
// optional but raises rate limits.
func NewPhishTank(apiKey string, client *http.Client, baseURL string) *Capability {
	if baseURL == "" {
		baseURL = DefaultPhishTankBaseURL
	}
	client = orDefaultClient(client)

	return &Capability{
		name:        "phishtank_url_check",
		description: "Checks if a URL is a known phishing site using PhishTank database.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"url": {
					Type:        genai.TypeString,
					Description: "The URL to check against the phishing database",
				},
			},
			Required: []string{"url"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			target, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}

			form := url.Values{
				"url":    {target},
				"format": {"json"},
			}
			if apiKey != "" {
				form.Set("app_key", apiKey)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL,
				strings.NewReader(form.Encode()))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("PhishTank request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("read PhishTank response: %w", err)
			}

			// PhishTank sometimes answers errors in XML even when JSON was
			// requested.
			var payload struct {
				Results *phishTankResults `json:"results"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return textResult(fmt.Sprintf("PhishTank API returned non-JSON response: %s...", clip(string(body), 200))), nil
			}
			if payload.Results == nil {
				return textResult("Unexpected response structure from PhishTank"), nil
			}

			results := payload.Results
			report := fmt.Sprintf("PhishTank Report for %s:\nIn Database: %t\n", target, results.InDatabase)
			if results.InDatabase {
				report += fmt.Sprintf("Valid Phish: %t\nLink: %s", results.ValidPhish, results.PhishDetailPage)
			} else {
				report += "Status: Not found in PhishTank database (Likely Safe)"
			}
			return textResult(report), nil
		},
	}
}
