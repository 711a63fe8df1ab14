package analysis

type SchemaType string

const (
	TypeObject SchemaType = "OBJECT"
	TypeArray  SchemaType = "ARRAY"
	TypeString SchemaType = "STRING"
)

// Schema is the subset of the OpenAPI schema object understood by the
// generateContent structured-output constraint.
type Schema struct {
	Type             SchemaType         `json:"type"`
	Description      string             `json:"description,omitempty"`
	Properties       map[string]*Schema `json:"properties,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Required         []string           `json:"required,omitempty"`
	Items            *Schema            `json:"items,omitempty"`
}

func ResponseSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"annotatedText": {
				Type:        TypeString,
				Description: "The original text with error and correction span markers.",
			},
			"corrections": {
				Type: TypeArray,
				Items: objectOf(
					field{"originalError", "The erroneous text as it appears in the original."},
					field{"correctedText", "The corrected replacement text."},
				),
			},
			"headlines": {
				Type: TypeArray,
				Items: objectOf(
					field{"headline", "Headline in Hindi."},
					field{"subheadline", "Subheadline in Hindi."},
				),
			},
		},
		PropertyOrdering: []string{"annotatedText", "corrections", "headlines"},
		Required:         []string{"annotatedText", "corrections", "headlines"},
	}
}

type field struct {
	name        string
	description string
}

func objectOf(fields ...field) *Schema {
	s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema, len(fields))}
	for _, f := range fields {
		s.Properties[f.name] = &Schema{Type: TypeString, Description: f.description}
		s.PropertyOrdering = append(s.PropertyOrdering, f.name)
		s.Required = append(s.Required, f.name)
	}
	return s
}
