package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/storyloom/storyloom/config"
)

// OllamaClient is the secondary provider, speaking the Ollama generate API
// of a locally hosted model.
type OllamaClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewOllamaClient builds the secondary provider from configuration.
func NewOllamaClient(cfg config.ProviderConfig, httpClient *http.Client) *OllamaClient {
	return &OllamaClient{
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		httpClient: httpClient,
	}
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Generate implements Generator.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": systemPrompt + "\n\n" + prompt(req),
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("generate error: %s", result.Error)
	}
	return strings.TrimSpace(result.Response), nil
}
