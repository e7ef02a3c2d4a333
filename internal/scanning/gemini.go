package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Gemini implements Model using the Google AI Studio API
type Gemini struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

// NewGemini creates a new Gemini Model instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client:    client,
		modelName: modelName,
		timeout:   60 * time.Second,
	}, nil
}

// Name identifies the provider
func (g *Gemini) Name() string {
	return "gemini/" + g.modelName
}

// Generate performs one GenerateContent call
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	// GenerativeModel carries per-call settings, so each call gets its own
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	switch req.Mode {
	case ModeSchema:
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = geminiSchema(req.Schema)
	case ModeTool:
		model.Tools = []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        req.Tool.Name,
				Description: req.Tool.Description,
				Parameters:  geminiSchema(req.Tool.Parameters),
			}},
		}}
		model.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingAny,
				AllowedFunctionNames: []string{req.Tool.Name},
			},
		}
	}

	parts := []genai.Part{}
	if len(req.Image) > 0 {
		parts = append(parts, genai.Blob{MIMEType: req.ImageMIME, Data: req.Image})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			// The model answered but refused; that is not a provider fault.
			return emptyResponse(req.Mode, blocked.Error()), nil
		}
		return nil, &ProviderError{
			Provider:  g.Name(),
			Message:   err.Error(),
			Throttled: status.Code(err) == codes.ResourceExhausted,
			Err:       err,
		}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return emptyResponse(req.Mode, "no response from gemini"), nil
	}

	var text strings.Builder
	var call *genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			if call == nil {
				c := p
				call = &c
			}
		}
	}

	out := &Response{Text: strings.TrimSpace(text.String())}
	switch {
	case req.Mode == ModeTool:
		out.Kind = KindToolCall
		if call != nil {
			args, err := json.Marshal(call.Args)
			if err != nil {
				return nil, fmt.Errorf("marshaling function call arguments: %w", err)
			}
			out.ToolName = call.Name
			out.ToolArgs = args
		}
	case req.Mode == ModeSchema:
		out.Kind = KindObject
		out.Object = json.RawMessage(out.Text)
	default:
		out.Kind = KindText
	}

	return out, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}

func geminiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Format:      s.Format,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	if len(s.Enum) > 0 {
		out.Format = "enum"
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
			out.Properties[name] = geminiSchema(p)
		}
	}
	return out
}

// emptyResponse is an answer that carries no usable payload
func emptyResponse(mode Mode, text string) *Response {
	if mode == ModeTool {
		return &Response{Kind: KindToolCall, Text: text}
	}
	return &Response{Kind: KindText, Text: text}
}
