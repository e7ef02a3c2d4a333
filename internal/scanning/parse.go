package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject returns the text between the first { and the last }
func extractJSONObject(text string) (string, error) {
	// Remove markdown code blocks if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return "", fmt.Errorf("invalid JSON object in response")
	}

	return text[startIdx : endIdx+1], nil
}

// decodeFreeform parses a JSON object embedded anywhere in text into v
func decodeFreeform(text string, v any) error {
	obj, err := extractJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}
	return nil
}

// decodeToolCall checks the model called the expected function and parses
// its arguments into v
func decodeToolCall(resp *Response, name string, v any) error {
	if resp.Kind != KindToolCall || resp.ToolName == "" {
		return fmt.Errorf("model did not call %s", name)
	}
	if resp.ToolName != name {
		return fmt.Errorf("model called %s instead of %s", resp.ToolName, name)
	}
	if err := json.Unmarshal(resp.ToolArgs, v); err != nil {
		return fmt.Errorf("unmarshaling %s arguments: %w", name, err)
	}
	return nil
}

// decodeResponse parses a response according to the tier that produced it
func decodeResponse(resp *Response, mode Mode, toolName string, v any) error {
	switch mode {
	case ModeSchema:
		if resp.Kind != KindObject {
			// Some runtimes accept a schema but still answer in text.
			return decodeFreeform(resp.Text, v)
		}
		if err := json.Unmarshal(resp.Object, v); err != nil {
			return fmt.Errorf("unmarshaling json: %w", err)
		}
		return nil
	case ModeTool:
		return decodeToolCall(resp, toolName, v)
	default:
		return decodeFreeform(resp.Text, v)
	}
}

// rawText picks the most useful diagnostic text from a response
func rawText(resp *Response) string {
	if resp == nil {
		return ""
	}
	switch resp.Kind {
	case KindObject:
		return string(resp.Object)
	case KindToolCall:
		if len(resp.ToolArgs) > 0 {
			return string(resp.ToolArgs)
		}
	}
	return resp.Text
}
