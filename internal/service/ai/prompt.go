package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

// BuildPrompt appends every document to the assistant prompt, sorted by name
func BuildPrompt(assistantPrompt string, documents map[string]string) string {
	names := make([]string, 0, len(documents))
	for name := range documents {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(assistantPrompt)
	for _, name := range names {
		b.WriteString("\n\n<document><name>")
		b.WriteString(name)
		b.WriteString("</name><content>")
		b.WriteString(documents[name])
		b.WriteString("</content></document>")
	}
	return b.String()
}

// ParseResponse strips markdown fences and decodes the object list
func ParseResponse(text string) (*DetectedObjectList, error) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var result DetectedObjectList
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if result.Objects == nil {
		result.Objects = []DetectedObject{}
	}
	return &result, nil
}

// ResponseSchema renders the JSON schema of DetectedObjectList
func ResponseSchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&DetectedObjectList{})
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
