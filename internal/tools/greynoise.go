package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// DefaultGreyNoiseBaseURL is the production GreyNoise Community API endpoint.
const DefaultGreyNoiseBaseURL = "https://api.greynoise.io/v3/community"

type greyNoiseReport struct {
	Noise          bool   `json:"noise"`
	Riot           bool   `json:"riot"`
	Classification string `json:"classification"`
	Name           string `json:"name"`
	LastSeen       string `json:"last_seen"`
	Link           string `json:"link"`
	Message        string `json:"message"`
}

// NewGreyNoise builds the greynoise_ip_check capability. The Community API
// answers lookups even without a key, within rate limits.
func NewGreyNoise(apiKey string, client *http.Client, baseURL string) *Capability {
	if baseURL == "" {
		baseURL = DefaultGreyNoiseBaseURL
	}
	client = orDefaultClient(client)

	return &Capability{
		name: "greynoise_ip_check",
		description: "Checks the reputation of an IP address using GreyNoise Community API. " +
			"Provides classification, actor, and noise/riot status.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"ip": {
					Type:        genai.TypeString,
					Description: "The IP address to check",
				},
			},
			Required: []string{"ip"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			ip, err := stringArg(args, "ip")
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/"+ip, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "application/json")
			if apiKey != "" {
				req.Header.Set("key", apiKey)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("GreyNoise request failed: %w", err)
			}
			defer resp.Body.Close()

			var report greyNoiseReport
			if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
				return nil, fmt.Errorf("decode GreyNoise response: %w", err)
			}

			// 404 means the IP has not been observed, which is itself a
			// useful answer for the user.
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
				return textResult(fmt.Sprintf("GreyNoise API error: %d - %s", resp.StatusCode, report.Message)), nil
			}

			if report.Classification == "" {
				report.Classification = "unknown"
			}
			if report.Name == "" {
				report.Name = "Unknown Service"
			}
			if report.LastSeen == "" {
				report.LastSeen = "Never"
			}
			if report.Link == "" {
				report.Link = "https://viz.greynoise.io/ip/" + ip
			}

			return textResult(fmt.Sprintf(
				"GreyNoise Community Report for %s:\n- Noise: %t\n- RIOT: %t\n- Classification: %s\n- Service/Name: %s\n- Last Seen: %s\n- Link: %s",
				ip, report.Noise, report.Riot, report.Classification, report.Name, report.LastSeen, report.Link)), nil
		},
	}
}
