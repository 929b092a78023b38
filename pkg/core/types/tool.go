package types

// Tool represents a tool exposed to the conversational model.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema *JSONSchema `json:"input_schema,omitempty"`
}

// JSONSchema is a minimal JSON Schema representation for tool inputs.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
}

// ToolStatus is the outcome of a tool invocation.
type ToolStatus string

const (
	ToolSuccess ToolStatus = "success"
	ToolError   ToolStatus = "error"
)

// ToolResult is the uniform result shape returned to the conversational
// model. Handlers never raise past this boundary; failures degrade to an
// error-status result with a safe string.
type ToolResult struct {
	Status ToolStatus `json:"status"`
	Result string     `json:"result"`
}

// NewFunctionTool creates a tool definition with an object input schema.
func NewFunctionTool(name, description string, schema *JSONSchema) Tool {
	return Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}
}
