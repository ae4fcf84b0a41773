package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultShodanBaseURL is the production Shodan REST API endpoint.
const DefaultShodanBaseURL = "https://api.shodan.io"

// ErrShodanKeyMissing indicates the capability was built without a key.
var ErrShodanKeyMissing = errors.New("Shodan API key not configured")

// shodanMatchLimit caps how many matches the report includes.
const shodanMatchLimit = 5

type shodanSearchResponse struct {
	Total   int    `json:"total"`
	Error   string `json:"error"`
	Matches []struct {
		IPStr    string `json:"ip_str"`
		Port     int    `json:"port"`
		Org      string `json:"org"`
		Location struct {
			CountryName string `json:"country_name"`
		} `json:"location"`
	} `json:"matches"`
}

// NewShodan builds the shodan_device_search capability.
func NewShodan(apiKey string, client *http.Client, baseURL string) *Capability {
	if baseURL == "" {
		baseURL = DefaultShodanBaseURL
	}
	client = orDefaultClient(client)

	return &Capability{
		name: "shodan_device_search",
		description: "Searches Shodan for devices using a query string (e.g., \"apache\", \"port:22\"). " +
			"Returns a summary of the top matches.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "The Shodan search query",
				},
			},
			Required: []string{"query"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			if apiKey == "" {
				return nil, ErrShodanKeyMissing
			}

			q := url.Values{
				"key":   {apiKey},
				"query": {query},
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				baseURL+"/shodan/host/search?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("Shodan request failed: %w", err)
			}
			defer resp.Body.Close()

			var payload shodanSearchResponse
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				return nil, fmt.Errorf("decode Shodan response: %w", err)
			}
			if payload.Error != "" {
				return textResult("Shodan API Error: " + payload.Error), nil
			}
			if resp.StatusCode != http.StatusOK {
				return textResult(fmt.Sprintf("Shodan API Error: status %d", resp.StatusCode)), nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Shodan Search Results for '%s' (Total: %d):\n", query, payload.Total)
			for i, m := range payload.Matches {
				if i >= shodanMatchLimit {
					break
				}
				org := m.Org
				if org == "" {
					org = "Unknown"
				}
				loc := m.Location.CountryName
				if loc == "" {
					loc = "Unknown"
				}
				fmt.Fprintf(&b, "- %s:%d | Org: %s | Loc: %s\n", m.IPStr, m.Port, org, loc)
			}
			return textResult(b.String()), nil
		},
	}
}
