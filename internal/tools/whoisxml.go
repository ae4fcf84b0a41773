package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultWhoisXMLBaseURL is the production WhoisXML API endpoint.
const DefaultWhoisXMLBaseURL = "https://www.whoisxmlapi.com/whoisserver/WhoisService"

// ErrWhoisXMLKeyMissing indicates the capability was built without a key.
var ErrWhoisXMLKeyMissing = errors.New("WhoisXML API key not configured")

type whoisRecord struct {
	RegistrarName string `json:"registrarName"`
	CreatedDate   string `json:"createdDate"`
	ExpiresDate   string `json:"expiresDate"`
	UpdatedDate   string `json:"updatedDate"`
	Registrant    struct {
		Name         string `json:"name"`
		Organization string `json:"organization"`
		Country      string `json:"country"`
	} `json:"registrant"`
	NameServers struct {
		HostNames []string `json:"hostNames"`
	} `json:"nameServers"`
}

// NewWhoisXML builds the whoisxml_lookup capability reporting domain
// registration details.
func NewWhoisXML(apiKey string, client *http.Client, baseURL string) *Capability {
	if baseURL == "" {
		baseURL = DefaultWhoisXMLBaseURL
	}
	client = orDefaultClient(client)

	return &Capability{
		name: "whoisxml_lookup",
		description: "Looks up WHOIS information for a domain using WhoisXML API. " +
			"Provides registrar, creation date, expiration date, and registrant information.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"domain": {
					Type:        genai.TypeString,
					Description: "The domain name to look up",
				},
			},
			Required: []string{"domain"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			domain, err := stringArg(args, "domain")
			if err != nil {
				return nil, err
			}
			if apiKey == "" {
				return nil, ErrWhoisXMLKeyMissing
			}

			domain = cleanDomain(domain)

			q := url.Values{
				"apiKey":       {apiKey},
				"domainName":   {domain},
				"outputFormat": {"JSON"},
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				baseURL+"?"+q.Encode(), nil)
			if err != nil {
				return nil, err
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("WhoisXML request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("read WhoisXML response: %w", err)
			}

			switch resp.StatusCode {
			case http.StatusOK:
				var payload struct {
					WhoisRecord whoisRecord `json:"WhoisRecord"`
				}
				if err := json.Unmarshal(body, &payload); err != nil {
					return nil, fmt.Errorf("decode WhoisXML response: %w", err)
				}
				return textResult(formatWhoisReport(domain, payload.WhoisRecord)), nil

			case http.StatusUnprocessableEntity:
				return textResult(fmt.Sprintf("Domain %s appears to be invalid or not registered.", domain)), nil

			default:
				return textResult(fmt.Sprintf("WhoisXML API error: %d - %s", resp.StatusCode, clip(string(body), 100))), nil
			}
		},
	}
}

// cleanDomain strips any scheme and path so only the host remains.
func cleanDomain(domain string) string {
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if i := strings.Index(domain, "/"); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

func formatWhoisReport(domain string, rec whoisRecord) string {
	ns := "N/A"
	if len(rec.NameServers.HostNames) > 0 {
		hosts := rec.NameServers.HostNames
		if len(hosts) > 3 {
			hosts = hosts[:3]
		}
		ns = strings.Join(hosts, ", ")
	}

	return fmt.Sprintf(
		"WhoisXML Domain Report for %s:\nRegistrar: %s\nCreated Date: %s\nExpires Date: %s\nUpdated Date: %s\nRegistrant: %s\nOrganization: %s\nCountry: %s\nName Servers: %s",
		domain,
		orNA(rec.RegistrarName),
		orNA(rec.CreatedDate),
		orNA(rec.ExpiresDate),
		orNA(rec.UpdatedDate),
		orNA(rec.Registrant.Name),
		orNA(rec.Registrant.Organization),
		orNA(rec.Registrant.Country),
		ns,
	)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
