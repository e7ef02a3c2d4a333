package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama implements Model using a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates a new Ollama Model instance.
// Vision models that read receipts well:
//   - qwen2.5vl (good OCR, supports tools and structured outputs)
//   - llama3.2-vision
//   - llava (no tool support; the extractor falls back to schema/freeform)
//
// Structured outputs need Ollama 0.5 or newer.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "qwen2.5vl"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		client: &http.Client{
			Timeout: 120 * time.Second, // Ollama can be slower, especially for vision models
		},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaFunctionSpec `json:"function"`
}

type ollamaFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Name identifies the provider
func (o *Ollama) Name() string {
	return "ollama/" + o.model
}

// Generate performs one chat call
func (o *Ollama) Generate(ctx context.Context, req Request) (*Response, error) {
	user := ollamaMessage{
		Role:    "user",
		Content: req.Prompt,
	}
	if len(req.Image) > 0 {
		user.Images = []string{base64.StdEncoding.EncodeToString(req.Image)}
	}

	messages := []ollamaMessage{}
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, user)

	reqBody := ollamaChatRequest{
		Model:    o.model,
		Stream:   false,
		Messages: messages,
		Options:  map[string]any{"temperature": 0},
	}
	switch req.Mode {
	case ModeSchema:
		reqBody.Format = req.Schema.JSONSchema()
	case ModeTool:
		// Ollama cannot force a call; the tool is offered and a reply
		// without a call counts as a decline.
		reqBody.Tools = []ollamaTool{{
			Type: "function",
			Function: ollamaFunctionSpec{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  req.Tool.Parameters.JSONSchema(),
			},
		}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: o.Name(), Message: "calling ollama API: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		// Models without tool or vision support answer 400 "... does not support ..."
		if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "does not support") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, strings.TrimSpace(string(body)))
		}
		return nil, &ProviderError{
			Provider:  o.Name(),
			Message:   fmt.Sprintf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))),
			Throttled: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable,
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &ProviderError{Provider: o.Name(), Message: "decoding response: " + err.Error(), Err: err}
	}

	text := strings.TrimSpace(chatResp.Message.Content)
	out := &Response{Text: text}
	switch req.Mode {
	case ModeTool:
		out.Kind = KindToolCall
		if len(chatResp.Message.ToolCalls) > 0 {
			call := chatResp.Message.ToolCalls[0].Function
			out.ToolName = call.Name
			out.ToolArgs = call.Arguments
		}
	case ModeSchema:
		out.Kind = KindObject
		out.Object = json.RawMessage(text)
	default:
		out.Kind = KindText
	}

	return out, nil
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
