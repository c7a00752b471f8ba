package scan

import (
	"fmt"
	"strings"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/ollama"
)

const promptHeader = `You are a form extraction engine. You are given a photographed or scanned document from a German course administration (Kursverwaltung). Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Rules:
- Extract only values that are clearly visible in the document.
- Use null for any field you cannot read.
- Dates must be formatted as YYYY-MM-DD.
- Reference fields (persons, rooms, courses) are plain names, never URLs or ids.`

// systemPrompt describes the target schema for one collection, field by
// field, using the German labels of the remote schema. The description is
// advisory text only; the reply is validated against the schema separately.
func systemPrompt(collection catalog.Key) string {
	var sb strings.Builder
	sb.WriteString(promptHeader)
	sb.WriteString("\n\nFields:\n")
	for _, f := range catalog.Schema(collection) {
		fmt.Fprintf(&sb, "- %q: %s // %s\n", f.Key, promptType(f), f.Label)
	}
	return sb.String()
}

func promptType(f catalog.FieldSpec) string {
	switch f.Type {
	case catalog.Number:
		return "number | null"
	case catalog.Bool:
		return "boolean | null"
	case catalog.Date:
		return "string | null, YYYY-MM-DD"
	case catalog.Ref:
		if len(f.Lookup.NameFields) > 1 {
			return `string | null, Vor- und Nachname (z.B. "Jonas Schmidt")`
		}
		return fmt.Sprintf("string | null, Name des %s-Eintrags", f.Lookup.Target)
	default:
		return "string | null"
	}
}

// extractionSchema returns the structured-output schema for one collection.
func extractionSchema(collection catalog.Key) *ollama.Schema {
	specs := catalog.Schema(collection)
	props := make(map[string]ollama.SchemaProperty, len(specs))
	required := make([]string, 0, len(specs))
	for _, f := range specs {
		props[f.Key] = ollama.SchemaProperty{Type: schemaType(f.Type), Description: f.Label}
		required = append(required, f.Key)
	}
	return &ollama.Schema{Type: "object", Properties: props, Required: required}
}

func schemaType(t catalog.FieldType) string {
	switch t {
	case catalog.Number:
		return "number"
	case catalog.Bool:
		return "boolean"
	default:
		return "string"
	}
}
