package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// DefaultVirusTotalBaseURL is the production VirusTotal v3 API endpoint.
const DefaultVirusTotalBaseURL = "https://www.virustotal.com/api/v3"

// ErrVirusTotalKeyMissing indicates the capability was built without a key.
var ErrVirusTotalKeyMissing = errors.New("VirusTotal API key not configured")

type vtAnalysisStats struct {
	Malicious  int `json:"malicious"`
	Suspicious int `json:"suspicious"`
	Harmless   int `json:"harmless"`
	Undetected int `json:"undetected"`
}

type vtReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats vtAnalysisStats `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// NewVirusTotal builds the virustotal_scan capability. It accepts a URL or
// a file hash and reports the latest analysis verdicts.
func NewVirusTotal(apiKey string, client *http.Client, baseURL string) *Capability {
	if baseURL == "" {
		baseURL = DefaultVirusTotalBaseURL
	}
	client = orDefaultClient(client)

	return &Capability{
		name: "virustotal_scan",
		description: "Scans a URL or File Hash (MD5, SHA-1, SHA-256) using VirusTotal API. " +
			"Provide a URL to scan or a file hash to retrieve a report.",
		schema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"target": {
					Type:        genai.TypeString,
					Description: "The URL or file hash to scan",
				},
			},
			Required: []string{"target"},
		},
		execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			target, err := stringArg(args, "target")
			if err != nil {
				return nil, err
			}
			if apiKey == "" {
				return nil, ErrVirusTotalKeyMissing
			}

			target = repairTarget(target)
			if looksLikeURL(target) {
				return vtScanURL(ctx, client, baseURL, apiKey, target)
			}
			return vtScanHash(ctx, client, baseURL, apiKey, target)
		},
	}
}

// repairTarget fixes common URL mangling produced by the model, such as
// "https-example.com" or a missing scheme.
func repairTarget(target string) string {
	switch {
	case strings.HasPrefix(target, "https-") && !strings.Contains(target, "://"):
		return "https://" + target[len("https-"):]
	case strings.HasPrefix(target, "http-") && !strings.Contains(target, "://"):
		return "http://" + target[len("http-"):]
	case strings.Contains(target, ".") && strings.Contains(target, "/") &&
		!strings.Contains(target, "://") && !strings.HasPrefix(target, "http"):
		return "https://" + target
	}
	return target
}

func looksLikeURL(target string) bool {
	lower := strings.ToLower(target)
	if strings.Contains(lower, "http") {
		return true
	}
	return strings.Contains(target, ".") && len(target) < 64 && !isAlphanumeric(target)
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func vtScanURL(ctx context.Context, client *http.Client, baseURL, apiKey, target string) (map[string]any, error) {
	urlID := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(target)), "=")

	status, body, err := vtGet(ctx, client, baseURL+"/urls/"+urlID, apiKey)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var report vtReport
		if err := json.Unmarshal(body, &report); err != nil {
			return nil, fmt.Errorf("decode VirusTotal response: %w", err)
		}
		stats := report.Data.Attributes.LastAnalysisStats
		return textResult(fmt.Sprintf(
			"VirusTotal URL Report for %s:\nMalicious: %d\nSuspicious: %d\nHarmless: %d\nUndetected: %d\nLink: https://www.virustotal.com/gui/url/%s",
			target, stats.Malicious, stats.Suspicious, stats.Harmless, stats.Undetected, urlID)), nil

	case http.StatusNotFound:
		// Unknown URL: submit it for analysis.
		return vtSubmitURL(ctx, client, baseURL, apiKey, target, urlID)

	default:
		return textResult(fmt.Sprintf("VirusTotal API error: %d - %s", status, clip(string(body), 100))), nil
	}
}

func vtSubmitURL(ctx context.Context, client *http.Client, baseURL, apiKey, target, urlID string) (map[string]any, error) {
	form := url.Values{"url": {target}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/urls",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-apikey", apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("VirusTotal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return textResult(fmt.Sprintf(
			"URL %s has been submitted to VirusTotal for scanning. Results will be available shortly at: https://www.virustotal.com/gui/url/%s",
			target, urlID)), nil
	}
	return textResult(fmt.Sprintf("Could not submit URL for scanning. Status: %d", resp.StatusCode)), nil
}

func vtScanHash(ctx context.Context, client *http.Client, baseURL, apiKey, hash string) (map[string]any, error) {
	status, body, err := vtGet(ctx, client, baseURL+"/files/"+hash, apiKey)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		var report vtReport
		if err := json.Unmarshal(body, &report); err != nil {
			return nil, fmt.Errorf("decode VirusTotal response: %w", err)
		}
		stats := report.Data.Attributes.LastAnalysisStats
		return textResult(fmt.Sprintf(
			"VirusTotal File Report for %s:\nMalicious: %d\nSuspicious: %d\nHarmless: %d\nUndetected: %d\nLink: https://www.virustotal.com/gui/file/%s",
			hash, stats.Malicious, stats.Suspicious, stats.Harmless, stats.Undetected, hash)), nil

	case http.StatusNotFound:
		return textResult(fmt.Sprintf("File hash %s not found in VirusTotal database.", hash)), nil

	default:
		return textResult(fmt.Sprintf("VirusTotal API error: %d", status)), nil
	}
}

func vtGet(ctx context.Context, client *http.Client, url, apiKey string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("x-apikey", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("VirusTotal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read VirusTotal response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
