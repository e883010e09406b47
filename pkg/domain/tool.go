package domain

// ToolDescriptor describes a tool advertised by the tool provider.
type ToolDescriptor struct {
	Name        string         `json:"name" yaml:"name" mapstructure:"name"`
	Description string         `json:"description" yaml:"description" mapstructure:"description"`
	Parameters  ToolParameters `json:"parameters" yaml:"parameters" mapstructure:"parameters"`
}

// ToolParameters is the object schema of a tool's arguments.
type ToolParameters struct {
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty" mapstructure:"properties"`
	Required   []string       `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
}

// Schema renders the parameters as a JSON-schema object, the shape chat
// completion services expect in a function tool advertisement.
func (p ToolParameters) Schema() map[string]any {
	props := p.Properties
	if props == nil {
		props = map[string]any{}
	}
	required := p.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToolOutput is the raw payload returned by a tool invocation.
type ToolOutput struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolCallRecord logs one tool invocation made while answering a query.
type ToolCallRecord struct {
	Hop       int    `json:"hop"`
	CallID    string `json:"call_id"`
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error,omitempty"`
	Err       error  `json:"-"`
}
