package llm

import (
	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/genai"
)

// FieldType is the JSON type of a schema field.
type FieldType string

const (
	Integer FieldType = "integer"
	String  FieldType = "string"
)

// Schema describes a flat JSON object with required fields. It is
// translated to each backend's structured-output format.
type Schema struct {
	Name   string
	Fields []Field
}

// Field is one required property of a Schema.
type Field struct {
	Name        string
	Type        FieldType
	Description string
}

func (s *Schema) genai() *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Fields)),
	}
	for _, f := range s.Fields {
		t := genai.TypeString
		if f.Type == Integer {
			t = genai.TypeInteger
		}
		out.Properties[f.Name] = &genai.Schema{Type: t, Description: f.Description}
		out.Required = append(out.Required, f.Name)
		out.PropertyOrdering = append(out.PropertyOrdering, f.Name)
	}
	return out
}

func (s *Schema) jsonSchema() *jsonschema.Definition {
	out := &jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           make(map[string]jsonschema.Definition, len(s.Fields)),
		AdditionalProperties: false,
	}
	for _, f := range s.Fields {
		t := jsonschema.String
		if f.Type == Integer {
			t = jsonschema.Integer
		}
		out.Properties[f.Name] = jsonschema.Definition{Type: t, Description: f.Description}
		out.Required = append(out.Required, f.Name)
	}
	return out
}
