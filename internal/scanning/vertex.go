package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Vertex implements Model using Gemini on Vertex AI. Credentials come from
// Application Default Credentials.
type Vertex struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewVertex creates a new Vertex Model instance
func NewVertex(ctx context.Context, project, location, modelName string) (*Vertex, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex project is required")
	}
	if location == "" {
		location = "us-central1"
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  project,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vertex client: %w", err)
	}

	return &Vertex{
		client:    client,
		modelName: modelName,
		timeout:   60 * time.Second,
	}, nil
}

// Name identifies the provider
func (v *Vertex) Name() string {
	return "vertex/" + v.modelName
}

// Generate performs one GenerateContent call
func (v *Vertex) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	switch req.Mode {
	case ModeSchema:
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = vertexSchema(req.Schema)
	case ModeTool:
		cfg.Tools = []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  vertexSchema(req.Tool.Parameters),
			}},
		}}
		cfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Tool.Name},
			},
		}
	}

	parts := []*genai.Part{}
	if len(req.Image) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: req.ImageMIME,
				Data:     req.Image,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: req.Prompt})

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := v.client.Models.GenerateContent(ctx, v.modelName, contents, cfg)
	if err != nil {
		return nil, &ProviderError{
			Provider:  v.Name(),
			Message:   err.Error(),
			Throttled: vertexThrottled(err),
			Err:       err,
		}
	}

	text := strings.TrimSpace(resp.Text())
	out := &Response{Text: text}
	switch req.Mode {
	case ModeTool:
		out.Kind = KindToolCall
		if calls := resp.FunctionCalls(); len(calls) > 0 {
			args, err := json.Marshal(calls[0].Args)
			if err != nil {
				return nil, fmt.Errorf("marshaling function call arguments: %w", err)
			}
			out.ToolName = calls[0].Name
			out.ToolArgs = args
		}
	case ModeSchema:
		out.Kind = KindObject
		out.Object = json.RawMessage(text)
	default:
		out.Kind = KindText
	}

	return out, nil
}

// Close is a no-op; the genai client holds no connections of its own
func (v *Vertex) Close() error {
	return nil
}

func vertexThrottled(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}

func vertexSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description:      s.Description,
		Format:           s.Format,
		Enum:             s.Enum,
		Required:         s.Required,
		PropertyOrdering: s.Order,
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeNumber:
		out.Type = genai.TypeNumber
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = vertexSchema(p)
		}
	}
	return out
}
