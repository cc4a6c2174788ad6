package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ollamaTagsResponse struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

// OllamaClient talks to the Ollama management API. It is used to check that the
// configured models are pulled before tasks start failing on them.
type OllamaClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewOllamaClient(endpoint string) *OllamaClient {
	return &OllamaClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ListModels returns the names of the locally available models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		name := m.Name
		if name == "" {
			name = m.Model
		}
		names = append(names, name)
	}
	return names, nil
}

// MissingModels returns the wanted models that the server does not have. A name
// without a tag matches ":latest".
func (c *OllamaClient) MissingModels(ctx context.Context, wanted ...string) ([]string, error) {
	have, err := c.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	available := make(map[string]bool, len(have)*2)
	for _, name := range have {
		available[name] = true
		if base, tag, ok := strings.Cut(name, ":"); ok && tag == "latest" {
			available[base] = true
		}
	}

	var missing []string
	for _, name := range wanted {
		if !available[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
