package tools

import (
	"fmt"
	"sync"

	"github.com/draftmind/draftmind/internal/llm"
)

// Registry manages available tools for the agent.
// Registration order is preserved so tool definitions are advertised to
// the model in the same order on every request.
type Registry struct {
	mu    sync.RWMutex
	names []string
	tools map[string]Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry
// Returns an error if a tool with the same name already exists
func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	r.names = append(r.names, name)
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tool names in registration order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// CanInvoke reports whether the given execution context may invoke the
// named tool. Unknown tools and premium tools without the premium flag
// are both denied.
func (r *Registry) CanInvoke(name string, ec ExecutionContext) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return fmt.Errorf("tool %q not found", name)
	}
	if tool.RequiresPremium() && !ec.Premium {
		return fmt.Errorf("tool %q requires a premium subscription", name)
	}
	return nil
}

// ToOpenAIFormat converts all registered tools to OpenAI tool definition
// format, in registration order
func (r *Registry) ToOpenAIFormat() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	definitions := make([]llm.ToolDefinition, 0, len(r.names))
	for _, name := range r.names {
		tool := r.tools[name]
		definitions = append(definitions, llm.ToolDefinition{
			Type: "function",
			Function: llm.Function{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  tool.Parameters(),
			},
		})
	}
	return definitions
}
